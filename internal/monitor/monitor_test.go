package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/policy"
)

func newMonitor(store docstore.Store) *Monitor {
	pol := policy.New(store, nil, &config.Config{MasterPassword: "exam123"}, zerolog.Nop())
	return New(store, pol, 15*time.Second, zerolog.Nop())
}

func put(t *testing.T, store docstore.Store, snap model.Snapshot) {
	t.Helper()
	doc, err := docstore.Encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), config.ColSessions, snap.Username, doc); err != nil {
		t.Fatal(err)
	}
}

func TestListOnlineOffline(t *testing.T) {
	store := docstore.NewMemStore()
	now := time.Now().UnixMilli()

	put(t, store, model.Snapshot{
		Username:    "fresh",
		RemainingMs: 60_000,
		PaperIDs:    []string{"a", "b"},
		Answers:     map[string]int{"a": 1},
		UpdatedAt:   now,
	})
	put(t, store, model.Snapshot{
		Username:    "stale",
		RemainingMs: 60_000,
		PaperIDs:    []string{"a"},
		UpdatedAt:   now - 60_000,
	})

	entries, err := newMonitor(store).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// Sorted by username.
	if entries[0].Username != "fresh" || entries[1].Username != "stale" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Username, entries[1].Username)
	}
	if !entries[0].Online {
		t.Fatal("recently updated session must be online")
	}
	if entries[1].Online {
		t.Fatal("stale session must be offline")
	}
	if entries[0].Answered != 1 || entries[0].Total != 2 {
		t.Fatalf("answered/total wrong: %+v", entries[0])
	}
}

func TestListMarksSubmitted(t *testing.T) {
	store := docstore.NewMemStore()
	put(t, store, model.Snapshot{
		Username:   "done",
		UnlockedBy: "system",
		UpdatedAt:  time.Now().UnixMilli(),
	})

	entries, err := newMonitor(store).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Submitted {
		t.Fatalf("cleared snapshot must read as submitted: %+v", entries)
	}
}

func TestUnlock(t *testing.T) {
	store := docstore.NewMemStore()
	ctx := context.Background()
	put(t, store, model.Snapshot{Username: "alice", Locked: true, LockReason: "blur", RemainingMs: 1000})

	if err := newMonitor(store).Unlock(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	doc, _ := store.Get(ctx, config.ColSessions, "alice")
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Locked || snap.UnlockedBy != "admin" {
		t.Fatalf("unlock not applied: %+v", snap)
	}
}

func TestEnableResume(t *testing.T) {
	store := docstore.NewMemStore()
	ctx := context.Background()
	put(t, store, model.Snapshot{Username: "bob", Resumes: 2, Locked: true, RemainingMs: 5000, PaperIDs: []string{"a"}})

	if err := newMonitor(store).EnableResume(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	doc, _ := store.Get(ctx, config.ColSessions, "bob")
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Resumes != 0 || snap.Locked {
		t.Fatalf("quota not reset: %+v", snap)
	}
	if !snap.Resumable() {
		t.Fatal("progress must survive a quota reset")
	}
}

func TestClearKeepsDocumentResetsProgress(t *testing.T) {
	store := docstore.NewMemStore()
	ctx := context.Background()
	put(t, store, model.Snapshot{
		Username:    "carol",
		RemainingMs: 5000,
		PaperIDs:    []string{"a", "b"},
		Answers:     map[string]int{"a": 2},
		Resumes:     1,
	})

	if err := newMonitor(store).Clear(ctx, "carol"); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Get(ctx, config.ColSessions, "carol")
	if err != nil {
		t.Fatal(err)
	}
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Resumable() || len(snap.Answers) != 0 || snap.Resumes != 0 {
		t.Fatalf("clear left progress behind: %+v", snap)
	}
}

func TestDeleteRemovesDocuments(t *testing.T) {
	store := docstore.NewMemStore()
	ctx := context.Background()
	put(t, store, model.Snapshot{Username: "dan", RemainingMs: 1000})

	if err := newMonitor(store).Delete(ctx, "dan"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, config.ColSessions, "dan"); err != docstore.ErrNotFound {
		t.Fatalf("session document must be gone, got %v", err)
	}
}
