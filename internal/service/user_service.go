package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// ErrUserNotFound is returned when no account exists for a username.
var ErrUserNotFound = errors.New("user not found")

// UserService manages candidate accounts in the users collection.
type UserService struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewUserService(store docstore.Store, log zerolog.Logger) *UserService {
	return &UserService{
		store: store,
		log:   log.With().Str("component", "user_service").Logger(),
	}
}

func (s *UserService) Get(ctx context.Context, username string) (model.User, error) {
	doc, err := s.store.Get(ctx, config.ColUsers, username)
	if err != nil {
		if err == docstore.ErrNotFound {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, err
	}

	var user model.User
	if err := docstore.Decode(doc, &user); err != nil {
		return model.User{}, err
	}
	if user.Username == "" {
		user.Username = username
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	docs, err := s.store.GetAll(ctx, config.ColUsers)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(docs))
	for id, doc := range docs {
		var user model.User
		if err := docstore.Decode(doc, &user); err != nil {
			s.log.Debug().Err(err).Str("doc_id", id).Msg("Skipping undecodable user document")
			continue
		}
		if user.Username == "" {
			user.Username = id
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *UserService) Save(ctx context.Context, user model.User) error {
	doc, err := docstore.Encode(user)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, config.ColUsers, user.Username, doc)
}

func (s *UserService) Delete(ctx context.Context, username string) error {
	return s.store.Delete(ctx, config.ColUsers, username)
}

// Authenticate checks a candidate's credentials. An unknown username
// with a full name attached registers the account on the spot; exam
// rosters are often finalized at the door, so first login doubles as
// registration. A known username must match its stored password.
func (s *UserService) Authenticate(ctx context.Context, req model.LoginRequest) (model.User, error) {
	user, err := s.Get(ctx, req.Username)
	if err == nil {
		if user.Password != "" && user.Password != req.Password {
			return model.User{}, ErrInvalidCredentials
		}
		return user, nil
	}
	if err != ErrUserNotFound {
		return model.User{}, err
	}

	if req.FullName == "" {
		return model.User{}, ErrInvalidCredentials
	}

	user = model.User{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Photo:    req.Photo,
	}
	if err := s.Save(ctx, user); err != nil {
		return model.User{}, err
	}
	s.log.Info().Str("username", user.Username).Msg("Registered candidate at login")
	return user, nil
}
