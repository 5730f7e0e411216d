package service

import (
	"context"
	"testing"
	"time"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

func newAuthService(store docstore.Store) *AuthService {
	cfg := &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		MasterPassword: "exam123",
	}
	return NewAuthService(cfg, nil, store)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	svc := newAuthService(docstore.NewMemStore())

	token, err := svc.GenerateAdminToken()
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.TokenType != TokenTypeAdmin {
		t.Fatalf("expected admin token, got %s", claims.TokenType)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := newAuthService(docstore.NewMemStore())
	if _, err := svc.ValidateToken("not.a.jwt"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := newAuthService(docstore.NewMemStore())
	token, err := issuer.GenerateAdminToken()
	if err != nil {
		t.Fatal(err)
	}

	verifier := NewAuthService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour}, nil, docstore.NewMemStore())
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestCheckAdminPassword(t *testing.T) {
	store := docstore.NewMemStore()
	doc, _ := docstore.Encode(model.AdminCredentials{Username: "admin", Password: "s3cret"})
	if err := store.Set(context.Background(), config.ColAdmin, config.AdminDocID, doc); err != nil {
		t.Fatal(err)
	}
	svc := newAuthService(store)
	ctx := context.Background()

	if err := svc.CheckAdminPassword(ctx, "exam123"); err != nil {
		t.Fatalf("master password must always work: %v", err)
	}
	if err := svc.CheckAdminPassword(ctx, "s3cret"); err != nil {
		t.Fatalf("credentials document password must work: %v", err)
	}
	if err := svc.CheckAdminPassword(ctx, "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.CheckAdminPassword(ctx, ""); err != ErrInvalidCredentials {
		t.Fatalf("empty password must be rejected, got %v", err)
	}
}

func TestCheckAdminPasswordWithoutCredentialsDoc(t *testing.T) {
	svc := newAuthService(docstore.NewMemStore())
	ctx := context.Background()

	if err := svc.CheckAdminPassword(ctx, "exam123"); err != nil {
		t.Fatalf("master password must work without a credentials document: %v", err)
	}
	if err := svc.CheckAdminPassword(ctx, "anything"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
