package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func mustRaw(s string) json.RawMessage {
	return json.RawMessage(s)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// failingRemote errors on every read so Fallback has to use the mirror.
type failingRemote struct {
	MemStore
}

func (f *failingRemote) Get(context.Context, string, string) (Fields, error) {
	return nil, errors.New("remote down")
}

func (f *failingRemote) GetAll(context.Context, string) (map[string]Fields, error) {
	return nil, errors.New("remote down")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	fields, err := Encode(doc{Name: "alpha", Count: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	var out doc
	if err := Decode(fields, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "alpha" || out.Count != 3 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestMemStoreMergePreservesOtherFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Set(ctx, "sessions", "amy", Fields{
		"remainingMs": mustRaw("60000"),
		"resumes":     mustRaw("1"),
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMerge(ctx, "sessions", "amy", Fields{
		"remainingMs": mustRaw("45000"),
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	doc, err := s.Get(ctx, "sessions", "amy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc["remainingMs"]) != "45000" {
		t.Errorf("remainingMs = %s, want 45000", doc["remainingMs"])
	}
	if string(doc["resumes"]) != "1" {
		t.Errorf("resumes = %s, want 1 (merge must not drop it)", doc["resumes"])
	}
}

func TestMemStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Set(ctx, "users", "amy", Fields{"password": mustRaw(`"a"`)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, _ := s.Get(ctx, "users", "amy")
	doc["password"] = mustRaw(`"mutated"`)

	again, _ := s.Get(ctx, "users", "amy")
	if string(again["password"]) != `"a"` {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMemStoreMonotonicUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.SetMerge(ctx, "sessions", "amy", Fields{"updatedAt": mustRaw("2000")}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// A stale writer must not roll the timestamp backwards; it gets
	// bumped just past the stored value instead.
	if err := s.SetMerge(ctx, "sessions", "amy", Fields{"updatedAt": mustRaw("1000")}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	doc, _ := s.Get(ctx, "sessions", "amy")
	if string(doc["updatedAt"]) != "2001" {
		t.Errorf("updatedAt = %s, want 2001", doc["updatedAt"])
	}
}

func TestMemStoreSubscribeSeesWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	ch, cancel, err := s.Subscribe(ctx, "sessions", "amy")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := s.Set(ctx, "sessions", "amy", Fields{"locked": mustRaw("true")}); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case doc := <-ch:
		if string(doc["locked"]) != "true" {
			t.Errorf("delivered locked = %s, want true", doc["locked"])
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery after write")
	}
}

func TestMemStoreSubscribeCancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	ch, cancel, err := s.Subscribe(ctx, "sessions", "amy")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel() // second call must be a no-op

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Writes after cancel must not panic or deliver.
	if err := s.Set(ctx, "sessions", "amy", Fields{"x": mustRaw("1")}); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "settings", "global", Fields{"durationMin": mustRaw("20")}); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	doc, err := second.Get(ctx, "settings", "global")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(doc["durationMin"]) != "20" {
		t.Errorf("durationMin = %s, want 20", doc["durationMin"])
	}

	if _, err := second.Get(ctx, "settings", "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFallbackReadsMirrorWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	mirror := NewMemStore()
	remote := &failingRemote{}

	fb := NewFallback(remote, mirror, testLogger())

	if err := mirror.Set(ctx, "users", "amy", Fields{"password": mustRaw(`"pw"`)}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}

	doc, err := fb.Get(ctx, "users", "amy")
	if err != nil {
		t.Fatalf("fallback get: %v", err)
	}
	if string(doc["password"]) != `"pw"` {
		t.Errorf("password = %s, want \"pw\"", doc["password"])
	}
}

func TestFallbackShadowsWritesToMirror(t *testing.T) {
	ctx := context.Background()
	remote := NewMemStore()
	mirror := NewMemStore()

	fb := NewFallback(remote, mirror, testLogger())

	if err := fb.Set(ctx, "users", "amy", Fields{"password": mustRaw(`"pw"`)}); err != nil {
		t.Fatalf("set: %v", err)
	}

	for name, s := range map[string]Store{"remote": remote, "mirror": mirror} {
		doc, err := s.Get(ctx, "users", "amy")
		if err != nil {
			t.Fatalf("%s get: %v", name, err)
		}
		if string(doc["password"]) != `"pw"` {
			t.Errorf("%s password = %s, want \"pw\"", name, doc["password"])
		}
	}
}
