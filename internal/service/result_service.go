package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/resultcrypto"
)

// ResultService owns the encrypted results document. The whole result
// list lives in one blob; every append decrypts, extends, and
// re-encrypts it. Result volume is one entry per candidate, so the
// rewrite stays cheap.
type ResultService struct {
	store docstore.Store
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewResultService(store docstore.Store, rdb *redis.Client, log zerolog.Logger) *ResultService {
	return &ResultService{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "result_service").Logger(),
	}
}

// List returns the decrypted result list. A missing document is an
// empty list; a document that fails to decrypt is an error, never a
// silently empty list.
func (s *ResultService) List(ctx context.Context) ([]model.Result, error) {
	doc, err := s.store.Get(ctx, config.ColResults, config.ResultsDocID)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	var wrapper model.ResultsDoc
	if err := docstore.Decode(doc, &wrapper); err != nil {
		return nil, err
	}

	var results []model.Result
	if err := resultcrypto.Decrypt(wrapper.Data, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// HasResult reports whether a candidate already has a recorded result.
func (s *ResultService) HasResult(ctx context.Context, username string) (bool, error) {
	results, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// Append adds one result to the encrypted document and queues it for
// durable archival.
func (s *ResultService) Append(ctx context.Context, result model.Result) error {
	results, err := s.List(ctx)
	if err != nil {
		return err
	}
	results = append(results, result)

	blob, err := resultcrypto.Encrypt(results)
	if err != nil {
		return err
	}
	doc, err := docstore.Encode(model.ResultsDoc{Data: blob})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, config.ColResults, config.ResultsDocID, doc); err != nil {
		return err
	}

	s.queueArchive(ctx, result)
	return nil
}

// Clear deletes the results document. The Postgres archive keeps the
// durable copy.
func (s *ResultService) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, config.ColResults, config.ResultsDocID)
}

// queueArchive pushes the result onto the archive worker's queue.
// Best-effort: the encrypted document is already the source of truth.
func (s *ResultService) queueArchive(ctx context.Context, result model.Result) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal result for archive")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.ArchiveResultsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("username", result.Username).Msg("Failed to queue result archive")
	}
}
