package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another device is already logged in, ask the admin to reset")
)

// TokenType distinguishes candidate vs admin tokens.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeAdmin     TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	Username  string    `json:"username,omitempty"` // Candidate only
}

// AuthService handles authentication, JWT, and the single-device rule.
type AuthService struct {
	cfg   *config.Config
	rdb   *redis.Client
	store docstore.Store
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, store docstore.Store) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, store: store}
}

// GenerateCandidateToken creates a JWT for a candidate and registers
// the login in Redis. A candidate already logged in on another device
// is rejected; an in-progress exam must not run twice in parallel.
func (s *AuthService) GenerateCandidateToken(ctx context.Context, username string) (string, error) {
	loginKey := config.CacheKey.CandidateLoginKey(username)

	existing, err := s.rdb.Get(ctx, loginKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("check login: %w", err)
	}
	if existing != "" {
		return "", ErrSessionAlreadyActive
	}

	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeCandidate,
		Username:  username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.rdb.Set(ctx, loginKey, jti, s.cfg.JWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("store login: %w", err)
	}

	return signed, nil
}

// GenerateAdminToken creates a JWT for the admin panel.
func (s *AuthService) GenerateAdminToken() (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ValidateCandidateLogin checks that a candidate token is still the
// active login for that account.
func (s *AuthService) ValidateCandidateLogin(ctx context.Context, username, jti string) error {
	current, err := s.rdb.Get(ctx, config.CacheKey.CandidateLoginKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return errors.New("login expired or reset")
	}
	if err != nil {
		return fmt.Errorf("check login: %w", err)
	}
	if current != jti {
		return errors.New("login superseded by another device")
	}
	return nil
}

// ResetCandidateLogin clears the Redis login entry so the candidate
// can log in again. Used by the admin and by logout.
func (s *AuthService) ResetCandidateLogin(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, config.CacheKey.CandidateLoginKey(username)).Err()
}

// CheckAdminPassword accepts the master password or the password from
// the admin credentials document. The master password always works so
// a lost credentials document cannot lock out the operator.
func (s *AuthService) CheckAdminPassword(ctx context.Context, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	if password == s.cfg.MasterPassword {
		return nil
	}

	doc, err := s.store.Get(ctx, config.ColAdmin, config.AdminDocID)
	if err != nil {
		return ErrInvalidCredentials
	}
	var creds model.AdminCredentials
	if err := docstore.Decode(doc, &creds); err != nil || creds.Password == "" {
		return ErrInvalidCredentials
	}
	if password != creds.Password {
		return ErrInvalidCredentials
	}
	return nil
}
