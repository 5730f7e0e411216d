package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

func newResultService() (*ResultService, *docstore.MemStore) {
	store := docstore.NewMemStore()
	return NewResultService(store, nil, zerolog.Nop()), store
}

func TestResultListEmpty(t *testing.T) {
	svc, _ := newResultService()
	results, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestResultAppendAndList(t *testing.T) {
	svc, store := newResultService()
	ctx := context.Background()

	r1 := model.Result{Username: "alice", TotalScorePercent: 80, Timestamp: 1}
	r2 := model.Result{Username: "bob", TotalScorePercent: 55, Timestamp: 2}
	if err := svc.Append(ctx, r1); err != nil {
		t.Fatal(err)
	}
	if err := svc.Append(ctx, r2); err != nil {
		t.Fatal(err)
	}

	results, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Username != "alice" || results[1].Username != "bob" {
		t.Fatalf("append order lost: %+v", results)
	}

	// The stored document must be ciphertext, not readable JSON.
	doc, err := store.Get(ctx, config.ColResults, config.ResultsDocID)
	if err != nil {
		t.Fatal(err)
	}
	var wrapper model.ResultsDoc
	if err := docstore.Decode(doc, &wrapper); err != nil {
		t.Fatal(err)
	}
	if len(wrapper.Data.IV) != 12 || wrapper.Data.Data == "" {
		t.Fatalf("results not stored encrypted: %+v", wrapper.Data)
	}
}

func TestResultHasResult(t *testing.T) {
	svc, _ := newResultService()
	ctx := context.Background()

	if err := svc.Append(ctx, model.Result{Username: "alice", TotalScorePercent: 90}); err != nil {
		t.Fatal(err)
	}

	has, err := svc.HasResult(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("expected alice to have a result")
	}

	has, err = svc.HasResult(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("bob must not have a result")
	}
}

func TestResultListFailsClosedOnTamper(t *testing.T) {
	svc, store := newResultService()
	ctx := context.Background()

	if err := svc.Append(ctx, model.Result{Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	doc, _ := store.Get(ctx, config.ColResults, config.ResultsDocID)
	var wrapper model.ResultsDoc
	if err := docstore.Decode(doc, &wrapper); err != nil {
		t.Fatal(err)
	}
	wrapper.Data.Data = "dGFtcGVyZWQ=" // valid base64, wrong ciphertext
	tampered, _ := docstore.Encode(model.ResultsDoc{Data: wrapper.Data})
	if err := store.Set(ctx, config.ColResults, config.ResultsDocID, tampered); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.List(ctx); err == nil {
		t.Fatal("tampered blob must fail to decrypt")
	}
}

func TestResultClear(t *testing.T) {
	svc, _ := newResultService()
	ctx := context.Background()

	if err := svc.Append(ctx, model.Result{Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	results, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(results))
	}
}
