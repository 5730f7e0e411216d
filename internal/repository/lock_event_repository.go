package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockEventRecord is one archived lock audit entry.
type LockEventRecord struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// LockEventRepository reads the durable lock audit trail. Writes go
// through the archive worker, never through request handlers.
type LockEventRepository struct {
	pool *pgxpool.Pool
}

// NewLockEventRepository creates a new LockEventRepository.
func NewLockEventRepository(pool *pgxpool.Pool) *LockEventRepository {
	return &LockEventRepository{pool: pool}
}

// List returns lock events newest first, optionally filtered by
// username.
func (r *LockEventRepository) List(ctx context.Context, username string, limit int) ([]LockEventRecord, error) {
	query := `SELECT id, username, action, reason, actor, recorded_at
	          FROM lock_events`
	args := []any{}
	if username != "" {
		query += ` WHERE username = $1`
		args = append(args, username)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]LockEventRecord, 0, limit)
	for rows.Next() {
		var ev LockEventRecord
		if err := rows.Scan(&ev.ID, &ev.Username, &ev.Action, &ev.Reason, &ev.Actor, &ev.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByUsername returns how many lock events each candidate has, for
// the monitor's per-candidate totals.
func (r *LockEventRepository) CountByUsername(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT username, COUNT(*) FROM lock_events WHERE action = 'locked' GROUP BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var username string
		var n int64
		if err := rows.Scan(&username, &n); err != nil {
			return nil, err
		}
		counts[username] = n
	}
	return counts, rows.Err()
}
