package server

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/command"
	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/journal"
	"github.com/odvcencio/screenpilot/pkg/pilot"
)

const directiveSource = "http"

type directivesResponse struct {
	BatchID  string           `json:"batchId,omitempty"`
	Queued   bool             `json:"queued"`
	Commands []command.Record `json:"commands"`
	Report   *reportView      `json:"report,omitempty"`
}

type reportView struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Aborted   bool         `json:"aborted"`
	Reason    string       `json:"reason,omitempty"`
	Summary   string       `json:"summary"`
	Results   []resultView `json:"results"`
}

type resultView struct {
	Index       int    `json:"index"`
	Directive   string `json:"directive"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
	Strategy    string `json:"strategy,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}

func newReportView(r automation.Report) *reportView {
	v := &reportView{
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Aborted:   r.Aborted,
		Reason:    r.Reason,
		Summary:   r.Summary(),
		Results:   make([]resultView, 0, len(r.Results)),
	}
	for _, st := range r.Results {
		rv := resultView{
			Index:       st.Index,
			Phase:       string(st.Phase),
			Description: st.Description,
			Strategy:    st.Strategy,
			DurationMs:  st.Duration.Milliseconds(),
		}
		if st.Command != nil {
			rv.Directive = st.Command.String()
		}
		if st.Err != nil {
			rv.Error = st.Err.Error()
		}
		v.Results = append(v.Results, rv)
	}
	return v
}

// handleDirectives accepts a text chunk, or a JSON pilot.Chunk when the
// content type is application/json. ?clear=true resets the buffer first and
// ?wait=true holds the response until the batch finishes.
func (s *Server) handleDirectives(w http.ResponseWriter, r *http.Request) {
	var chunk pilot.Chunk
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSONBody(w, r, &chunk, maxDirectiveBodyBytes); err != nil {
			respondError(w, statusFor(err), err)
			return
		}
	} else {
		text, err := readTextBody(w, r, maxDirectiveBodyBytes)
		if err != nil {
			respondError(w, statusFor(err), err)
			return
		}
		chunk.Text = text
	}
	if queryBool(r, "clear") {
		chunk.Clear = true
	}

	sub, err := s.pilot.Feed(r.Context(), chunk.Text, chunk.Clear, directiveSource)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}

	resp := directivesResponse{BatchID: sub.BatchID, Queued: sub.Queued(), Commands: sub.Commands}
	if sub.Queued() && queryBool(r, "wait") {
		report, err := sub.Wait(r.Context())
		if err != nil {
			respondError(w, statusFor(err), err)
			return
		}
		resp.Report = newReportView(report)
	}

	status := http.StatusOK
	if sub.Queued() && resp.Report == nil {
		status = http.StatusAccepted
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.pilot.Clear()
	respondJSON(w, http.StatusOK, pilot.Ack{OK: true})
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"buffered": s.pilot.Buffered()})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if !s.requireJournal(w) {
		return
	}
	limit := defaultBatchLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest,
				apperrors.Newf(apperrors.ErrCodeInvalidInput, "invalid limit %q", raw))
			return
		}
		limit = min(n, maxBatchLimit)
	}
	batches, err := s.journal.RecentBatches(r.Context(), limit)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	if batches == nil {
		batches = []journal.Batch{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if !s.requireJournal(w) {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "batchID"))
	batch, err := s.journal.Batch(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	results, err := s.journal.Results(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	if results == nil {
		results = []journal.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"batch": batch, "results": results})
}

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal != nil {
		return true
	}
	respondError(w, http.StatusServiceUnavailable,
		apperrors.New(apperrors.ErrCodeStorageRead, "run journal is disabled"))
	return false
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.journal != nil {
		if err := s.journal.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
