package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// QuestionService manages the question bank.
type QuestionService struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewQuestionService(store docstore.Store, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		store: store,
		log:   log.With().Str("component", "question_service").Logger(),
	}
}

// Bank loads the full question bank, ordered by id for stable output.
func (s *QuestionService) Bank(ctx context.Context) ([]model.Question, error) {
	docs, err := s.store.GetAll(ctx, config.ColQuestions)
	if err != nil {
		return nil, err
	}

	bank := make([]model.Question, 0, len(docs))
	for id, doc := range docs {
		var q model.Question
		if err := docstore.Decode(doc, &q); err != nil {
			s.log.Debug().Err(err).Str("doc_id", id).Msg("Skipping undecodable question document")
			continue
		}
		if q.ID == "" {
			q.ID = id
		}
		bank = append(bank, q)
	}

	sort.Slice(bank, func(i, j int) bool { return bank[i].ID < bank[j].ID })
	return bank, nil
}

func (s *QuestionService) Get(ctx context.Context, id string) (model.Question, error) {
	doc, err := s.store.Get(ctx, config.ColQuestions, id)
	if err != nil {
		return model.Question{}, err
	}
	var q model.Question
	if err := docstore.Decode(doc, &q); err != nil {
		return model.Question{}, err
	}
	if q.ID == "" {
		q.ID = id
	}
	return q, nil
}

// Save creates or updates a bank question. A request without an id
// gets a generated one.
func (s *QuestionService) Save(ctx context.Context, req model.SaveQuestionRequest) (model.Question, error) {
	q := model.Question{
		ID:           req.ID,
		Text:         req.Text,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
		Marks:        req.Marks,
		Category:     req.Category,
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}

	doc, err := docstore.Encode(q)
	if err != nil {
		return model.Question{}, err
	}
	if err := s.store.Set(ctx, config.ColQuestions, q.ID, doc); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

func (s *QuestionService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, config.ColQuestions, id)
}

// Import writes a batch of questions, generating ids where missing.
// Used by the seed command.
func (s *QuestionService) Import(ctx context.Context, questions []model.Question) (int, error) {
	n := 0
	for _, q := range questions {
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		doc, err := docstore.Encode(q)
		if err != nil {
			return n, err
		}
		if err := s.store.Set(ctx, config.ColQuestions, q.ID, doc); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
