package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

// Batch is one executed command batch.
type Batch struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId,omitempty"`
	Source     string     `json:"source,omitempty"`
	Commands   int        `json:"commands"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Aborted    bool       `json:"aborted"`
	Reason     string     `json:"reason,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Finished reports whether the batch outcome has been recorded.
func (b Batch) Finished() bool {
	return b.FinishedAt != nil
}

// Outcome is the final tally written by FinishBatch.
type Outcome struct {
	Succeeded int
	Failed    int
	Skipped   int
	Aborted   bool
	Reason    string
}

// Result is the status of one command within a batch.
type Result struct {
	BatchID     string        `json:"batchId"`
	Index       int           `json:"index"`
	Kind        string        `json:"kind"`
	Command     string        `json:"command"`
	Description string        `json:"description"`
	Strategy    string        `json:"strategy,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// RecordBatch inserts a new, unfinished batch.
func (j *Journal) RecordBatch(ctx context.Context, b Batch) error {
	if b.ID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "batch id is required")
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	_, err := j.exec(ctx, `
		INSERT INTO batches (id, session_id, source, command_count, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.SessionID, b.Source, b.Commands, b.StartedAt.UTC())
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "recording batch").WithContext("batch", b.ID)
	}
	return nil
}

// RecordResult stores one command result. Re-recording an index replaces it.
func (j *Journal) RecordResult(ctx context.Context, r Result) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := j.exec(ctx, `
		INSERT OR REPLACE INTO results
			(batch_id, idx, kind, command, description, strategy, succeeded, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.BatchID, r.Index, r.Kind, r.Command, r.Description, r.Strategy, r.Succeeded, r.Error,
		r.Duration.Milliseconds(), r.CreatedAt.UTC())
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "recording result").
			WithContext("batch", r.BatchID).
			WithContext("index", r.Index)
	}
	return nil
}

// FinishBatch stores the final tally and stamps the finish time.
func (j *Journal) FinishBatch(ctx context.Context, id string, o Outcome) error {
	res, err := j.exec(ctx, `
		UPDATE batches
		SET succeeded = ?, failed = ?, skipped = ?, aborted = ?, reason = ?, finished_at = ?
		WHERE id = ?
	`, o.Succeeded, o.Failed, o.Skipped, o.Aborted, o.Reason, time.Now().UTC(), id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "finishing batch").WithContext("batch", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.Wrap(ErrBatchNotFound, apperrors.ErrCodeNotFound, "finishing batch").WithContext("batch", id)
	}
	return nil
}

const batchColumns = `id, session_id, source, command_count, succeeded, failed, skipped, aborted, reason, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (Batch, error) {
	var (
		b        Batch
		finished sql.NullTime
	)
	err := row.Scan(&b.ID, &b.SessionID, &b.Source, &b.Commands, &b.Succeeded, &b.Failed,
		&b.Skipped, &b.Aborted, &b.Reason, &b.StartedAt, &finished)
	if err != nil {
		return Batch{}, err
	}
	if finished.Valid {
		t := finished.Time
		b.FinishedAt = &t
	}
	return b, nil
}

// Batch returns one batch by id.
func (j *Journal) Batch(ctx context.Context, id string) (Batch, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, apperrors.Wrap(ErrBatchNotFound, apperrors.ErrCodeNotFound, "loading batch").WithContext("batch", id)
	}
	if err != nil {
		return Batch{}, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "loading batch").WithContext("batch", id)
	}
	return b, nil
}

// RecentBatches returns up to limit batches, newest first.
func (j *Journal) RecentBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing batches")
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "scanning batch")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing batches")
	}
	return out, nil
}

// Results returns a batch's results in command order.
func (j *Journal) Results(ctx context.Context, batchID string) ([]Result, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT batch_id, idx, kind, command, description, strategy, succeeded, error, duration_ms, created_at
		FROM results
		WHERE batch_id = ?
		ORDER BY idx
	`, batchID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing results").WithContext("batch", batchID)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r  Result
			ms int64
		)
		if err := rows.Scan(&r.BatchID, &r.Index, &r.Kind, &r.Command, &r.Description, &r.Strategy,
			&r.Succeeded, &r.Error, &ms, &r.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "scanning result")
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing results")
	}
	return out, nil
}

// Prune deletes finished batches that started before cutoff, returning
// how many were removed. Results go with them.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.exec(ctx, `DELETE FROM batches WHERE finished_at IS NOT NULL AND started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "pruning batches")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
