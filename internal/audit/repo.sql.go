package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store against the audit_logs table. Only the insert
// and read queries exist; the table's immutability is part of the
// contract, not an accident of missing code.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL ledger store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert appends one record.
func (s *PGStore) Insert(ctx context.Context, rec Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ActorID, string(rec.Action), rec.EntityType, nullable(rec.EntityID), details,
		nullable(rec.IPAddress), nullable(rec.UserAgent), rec.CreatedAt,
	)
	return err
}

// TimelineFilters narrows a ledger read.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineWindow reads a page of records, newest first. It fetches one
// row beyond the page to detect whether a next page exists.
func (s *PGStore) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= ?", f.To)
	}
	if f.ActorID != 0 {
		add("actor_id = ?", f.ActorID)
	}
	if f.Entity != "" {
		add("entity_type = ?", f.Entity)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}

	query := "SELECT actor_id, action, entity_type, COALESCE(entity_id, ''), details, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at FROM audit_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, offset)
	query += " ORDER BY created_at DESC OFFSET " + placeholder(len(args))
	args = append(args, limit)
	query += " LIMIT " + placeholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			action  string
			details []byte
		)
		if err := rows.Scan(&rec.ActorID, &action, &rec.EntityType, &rec.EntityID, &details, &rec.IPAddress, &rec.UserAgent, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Action = Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
