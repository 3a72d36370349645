// Package jobs runs the background queue: replaying audit records that
// could not be written synchronously and purging expired session rows.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/chapterhouse/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord replays a ledger record that failed its
	// synchronous insert. Delivery is at-least-once.
	TaskAuditRecord = "audit:record"
	// TaskSessionsPurge removes expired session rows.
	TaskSessionsPurge = "sessions:purge"
)

// NewAuditRecordTask constructs the replay task for one ledger record.
func NewAuditRecordTask(rec audit.Record) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewSessionsPurgeTask constructs the periodic purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// AuditRecordHandler replays queued ledger records into the store.
func AuditRecordHandler(store audit.Store, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec audit.Record
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			logger.Error("audit replay: bad payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := store.Insert(ctx, rec); err != nil {
			logger.Warn("audit replay failed, will retry",
				slog.Int64("actor_id", rec.ActorID),
				slog.String("action", string(rec.Action)),
				slog.Any("error", err),
			)
			return err
		}
		return nil
	}
}

// SessionsPurgeHandler deletes session rows past their expiry.
func SessionsPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
		if err != nil {
			return err
		}
		if n := tag.RowsAffected(); n > 0 {
			logger.Info("sessions purged", slog.Int64("removed", n))
		}
		return nil
	}
}
