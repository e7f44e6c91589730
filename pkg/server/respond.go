package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Error     string         `json:"error"`
	Status    int            `json:"status"`
	Code      string         `json:"code,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{
		Error:     http.StatusText(status),
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		resp.Code = string(appErr.Code)
		resp.Error = appErr.Message
		resp.Context = appErr.Context
		resp.Retryable = appErr.Retryable
	} else if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, status, resp)
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeClosed:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSONBody decodes a size-limited JSON body into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errBodyTooLarge, maxBytes)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "decoding JSON body")
	}
	return nil
}

// readTextBody reads a size-limited plain text body.
func readTextBody(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", fmt.Errorf("%w (max %d bytes)", errBodyTooLarge, maxBytes)
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "reading body")
	}
	return string(data), nil
}
