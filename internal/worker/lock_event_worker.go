package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/policy"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// LockEventWorker drains the lock-event queue into Postgres. The
// session documents only carry the current lock state; this archive is
// what invigilators review after the exam.
type LockEventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewLockEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *LockEventWorker {
	return &LockEventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "lock_event_worker").Logger(),
	}
}

func (w *LockEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LockEventWorker started")

	buffer := make([]*policy.LockEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.LockEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var ev policy.LockEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &ev)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *LockEventWorker) flushSafe(ctx context.Context, batch []*policy.LockEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *LockEventWorker) bulkInsert(ctx context.Context, batch []*policy.LockEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		rows = append(rows, []interface{}{
			ev.Username, ev.Action, ev.Reason, ev.Actor, time.UnixMilli(ev.Timestamp),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"lock_events"},
		[]string{"username", "action", "reason", "actor", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *LockEventWorker) fallbackInsert(ctx context.Context, batch []*policy.LockEvent) {
	requeueList := make([]*policy.LockEvent, 0)

	for _, ev := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO lock_events (username, action, reason, actor, recorded_at)
             VALUES ($1, $2, $3, $4, $5)`,
			ev.Username, ev.Action, ev.Reason, ev.Actor, time.UnixMilli(ev.Timestamp),
		)
		if err != nil {
			w.log.Error().Err(err).Str("username", ev.Username).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *LockEventWorker) requeue(ctx context.Context, items []*policy.LockEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.LockEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *LockEventWorker) shutdown(buffer []*policy.LockEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
