package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// failingStore errors on every read.
type failingStore struct {
	docstore.Store
}

func (failingStore) Get(context.Context, string, string) (docstore.Fields, error) {
	return nil, errors.New("backend down")
}

func testPolicy(store docstore.Store) *Policy {
	cfg := &config.Config{MasterPassword: "exam123"}
	return New(store, nil, cfg, zerolog.Nop())
}

func putSnapshot(t *testing.T, store docstore.Store, snap model.Snapshot) {
	t.Helper()
	doc, err := docstore.Encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), config.ColSessions, snap.Username, doc); err != nil {
		t.Fatal(err)
	}
}

func TestResumeAllowedUnderQuota(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 1})

	settings := model.DefaultSettings() // max 2
	if !testPolicy(store).ResumeAllowed(context.Background(), "alice", settings) {
		t.Fatal("1 of 2 resumes used, resume must be allowed")
	}
}

func TestResumeDeniedAtQuota(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 2})

	settings := model.DefaultSettings()
	if testPolicy(store).ResumeAllowed(context.Background(), "alice", settings) {
		t.Fatal("quota exhausted, resume must be denied")
	}
}

func TestResumeAllowedWhenDisabled(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 99})

	settings := model.DefaultSettings()
	settings.ResumeEnabled = false
	if !testPolicy(store).ResumeAllowed(context.Background(), "alice", settings) {
		t.Fatal("quota must not apply when resume tracking is disabled")
	}
}

func TestResumeFailsOpenOnReadError(t *testing.T) {
	store := failingStore{docstore.NewMemStore()}
	if !testPolicy(store).ResumeAllowed(context.Background(), "alice", model.DefaultSettings()) {
		t.Fatal("unreadable quota must allow the resume")
	}
}

func TestResumeLimitDefaultsWhenUnset(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 1})

	settings := model.DefaultSettings()
	settings.MaxResumes = 0 // falls back to 2
	if !testPolicy(store).ResumeAllowed(context.Background(), "alice", settings) {
		t.Fatal("unset limit must behave as 2")
	}

	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 2})
	if testPolicy(store).ResumeAllowed(context.Background(), "alice", settings) {
		t.Fatal("unset limit must still cap at 2")
	}
}

func TestIncrementResumes(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "alice", Resumes: 1, RemainingMs: 5000})

	p := testPolicy(store)
	n, err := p.IncrementResumes(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected resume count 2, got %d", n)
	}

	doc, err := store.Get(context.Background(), config.ColSessions, "alice")
	if err != nil {
		t.Fatal(err)
	}
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Resumes != 2 {
		t.Fatalf("persisted resumes: expected 2, got %d", snap.Resumes)
	}
	if snap.RemainingMs != 5000 {
		t.Fatal("merge write must not disturb other fields")
	}
}

func TestLockAndUnlock(t *testing.T) {
	store := docstore.NewMemStore()
	putSnapshot(t, store, model.Snapshot{Username: "bob", RemainingMs: 9000})
	ctx := context.Background()
	p := testPolicy(store)

	if err := p.Lock(ctx, "bob", "tab-switch"); err != nil {
		t.Fatal(err)
	}
	doc, _ := store.Get(ctx, config.ColSessions, "bob")
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Locked || snap.LockReason != "tab-switch" {
		t.Fatalf("lock not applied: %+v", snap)
	}

	if err := p.Unlock(ctx, "bob", "admin"); err != nil {
		t.Fatal(err)
	}
	doc, _ = store.Get(ctx, config.ColSessions, "bob")
	if err := docstore.Decode(doc, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Locked {
		t.Fatal("unlock did not clear the lock")
	}
	if snap.UnlockedBy != "admin" || snap.UnlockedAt == 0 {
		t.Fatalf("unlock must stamp the actor: %+v", snap)
	}
}

func TestUnlockAuthorized(t *testing.T) {
	store := docstore.NewMemStore()
	ctx := context.Background()

	adminDoc, _ := docstore.Encode(model.AdminCredentials{Username: "admin", Password: "s3cret"})
	if err := store.Set(ctx, config.ColAdmin, config.AdminDocID, adminDoc); err != nil {
		t.Fatal(err)
	}
	userDoc, _ := docstore.Encode(model.User{Username: "carol", Password: "mypw"})
	if err := store.Set(ctx, config.ColUsers, "carol", userDoc); err != nil {
		t.Fatal(err)
	}

	p := testPolicy(store)

	cases := []struct {
		password  string
		wantActor string
		wantOK    bool
	}{
		{"exam123", "master", true},
		{"s3cret", "admin", true},
		{"mypw", "carol", true},
		{"wrong", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		actor, ok := p.UnlockAuthorized(ctx, "carol", c.password)
		if ok != c.wantOK || actor != c.wantActor {
			t.Errorf("password %q: got (%q, %v), want (%q, %v)", c.password, actor, ok, c.wantActor, c.wantOK)
		}
	}
}

func TestLockEventJSONShape(t *testing.T) {
	ev := LockEvent{Username: "dan", Action: ActionLocked, Reason: "blur", Timestamp: 123}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["username"] != "dan" || m["action"] != "locked" || m["reason"] != "blur" {
		t.Fatalf("unexpected event shape: %v", m)
	}
	if _, ok := m["actor"]; ok {
		t.Fatal("empty actor must be omitted")
	}
}
