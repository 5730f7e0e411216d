package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// ResultArchiveWorker mirrors graded results into Postgres. The
// encrypted document is what the app reads; the table is the durable
// copy that survives a store wipe and feeds reporting queries.
//
// Results arrive one per candidate over the whole exam, so this worker
// inserts row by row instead of batching.
type ResultArchiveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultArchiveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultArchiveWorker {
	return &ResultArchiveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_archive_worker").Logger(),
	}
}

func (w *ResultArchiveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultArchiveWorker started")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.ArchiveResultsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var r model.Result
		if err := json.Unmarshal([]byte(result[1]), &r); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		if err := w.insert(ctx, &r); err != nil {
			w.log.Error().Err(err).Str("username", r.Username).Msg("Insert failed, requeueing")
			w.requeue(ctx, result[1])
		}
	}
}

// insert upserts on username: a result replayed from the queue after a
// partial failure must not duplicate the row.
func (w *ResultArchiveWorker) insert(ctx context.Context, r *model.Result) error {
	sections, err := json.Marshal(r.SectionScores)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_results (username, total_score_percent, section_scores, submitted_at)
         VALUES ($1, $2, $3::jsonb, $4)
         ON CONFLICT (username) DO UPDATE
         SET total_score_percent = EXCLUDED.total_score_percent,
             section_scores = EXCLUDED.section_scores,
             submitted_at = EXCLUDED.submitted_at`,
		r.Username, r.TotalScorePercent, sections, time.UnixMilli(r.Timestamp),
	)
	return err
}

func (w *ResultArchiveWorker) requeue(ctx context.Context, payload string) {
	if err := w.rdb.RPush(ctx, config.WorkerKey.ArchiveResultsQueue, payload).Err(); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue result. Data loss occurred.")
		return
	}
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}
