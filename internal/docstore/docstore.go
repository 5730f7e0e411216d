package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// ErrSubscribeUnavailable is returned by Subscribe when the backing
// store has no push mechanism; callers fall back to polling.
var ErrSubscribeUnavailable = errors.New("docstore: subscriptions unavailable")

// Fields is one document as a set of independently-writable fields,
// each holding raw JSON. Merge writes overwrite fields one by one and
// leave the rest of the document untouched.
type Fields map[string]json.RawMessage

// Store is a key-addressed document store: named collections of
// documents, each addressable by collection+id. Constructors connect
// and validate the backend once; a store handed to callers is ready.
type Store interface {
	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Fields, error)
	// GetAll returns every document in a collection, keyed by id.
	GetAll(ctx context.Context, collection string) (map[string]Fields, error)
	// Set replaces the document wholesale.
	Set(ctx context.Context, collection, id string, doc Fields) error
	// SetMerge overwrites only the given fields (merge semantics).
	SetMerge(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes the document. Deleting a missing document is not
	// an error.
	Delete(ctx context.Context, collection, id string) error
}

// Subscriber is the optional push capability. The returned channel
// receives the full document state on every write to it, including the
// subscriber's own writes. The cancel func must be called exactly once;
// it closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, collection, id string) (<-chan Fields, func(), error)
}

// Encode converts a struct (or map) into document fields via its JSON
// representation.
func Encode(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return f, nil
}

// Decode unmarshals document fields into v.
func Decode(f Fields, v any) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Clone returns an independent copy of the fields.
func (f Fields) Clone() Fields {
	cp := make(Fields, len(f))
	for k, v := range f {
		cp[k] = append(json.RawMessage(nil), v...)
	}
	return cp
}
