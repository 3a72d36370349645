// Package audit maintains the forensic ledger of state-changing
// decisions. The ledger is append-only: nothing in this package can
// update or delete a written record.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const insertRetries = 3

// Store persists ledger records durably.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

// Enqueuer hands a record to the at-least-once background queue when the
// synchronous write path is unavailable.
type Enqueuer interface {
	EnqueueAuditRecord(ctx context.Context, rec Record) error
}

// Recorder appends entries to the ledger. The synchronous insert is
// retried a bounded number of times; a terminal failure falls back to
// the queue so the record is not lost, and the caller's mutation
// response is never failed on the ledger's behalf.
type Recorder struct {
	store    Store
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder returns a Recorder. enqueuer may be nil; without it a
// terminal insert failure is only logged.
func NewRecorder(store Store, enqueuer Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, enqueuer: enqueuer, logger: logger, now: time.Now}
}

// Record appends one entry to the ledger. The returned error reports a
// record that could be neither written nor queued; callers log it and
// move on, they do not roll back the mutation it describes.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if rec.ActorID == 0 || rec.Action == "" || rec.EntityType == "" {
		return errors.New("audit: record requires actor/action/entity_type")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		if lastErr = r.store.Insert(ctx, rec); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.logger.Error("audit write failed",
		slog.Int64("actor_id", rec.ActorID),
		slog.String("action", string(rec.Action)),
		slog.String("entity_type", rec.EntityType),
		slog.Any("error", lastErr),
	)

	if r.enqueuer != nil {
		if err := r.enqueuer.EnqueueAuditRecord(ctx, rec); err == nil {
			return nil
		} else {
			r.logger.Error("audit enqueue failed", slog.Any("error", err))
		}
	}
	return lastErr
}
