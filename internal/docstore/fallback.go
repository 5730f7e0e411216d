package docstore

import (
	"context"

	"github.com/rs/zerolog"
)

// Fallback composes the remote store with a local mirror. Writes go to
// the remote first and are mirrored best-effort; reads fall back to
// the mirror when the remote errors, so transient outages never take
// cached data away from a running exam.
type Fallback struct {
	remote Store
	mirror Store
	log    zerolog.Logger
}

// NewFallback wires a remote store and its mirror. mirror may be nil,
// in which case Fallback is a transparent passthrough.
func NewFallback(remote, mirror Store, log zerolog.Logger) *Fallback {
	return &Fallback{
		remote: remote,
		mirror: mirror,
		log:    log.With().Str("component", "docstore_fallback").Logger(),
	}
}

func (f *Fallback) Get(ctx context.Context, collection, id string) (Fields, error) {
	doc, err := f.remote.Get(ctx, collection, id)
	if err == nil || err == ErrNotFound || f.mirror == nil {
		return doc, err
	}
	f.log.Warn().Err(err).Str("doc", collection+"/"+id).Msg("Remote read failed, using mirror")
	return f.mirror.Get(ctx, collection, id)
}

func (f *Fallback) GetAll(ctx context.Context, collection string) (map[string]Fields, error) {
	docs, err := f.remote.GetAll(ctx, collection)
	if err == nil || f.mirror == nil {
		return docs, err
	}
	f.log.Warn().Err(err).Str("collection", collection).Msg("Remote list failed, using mirror")
	return f.mirror.GetAll(ctx, collection)
}

func (f *Fallback) Set(ctx context.Context, collection, id string, doc Fields) error {
	err := f.remote.Set(ctx, collection, id, doc)
	f.mirrorWrite(ctx, collection, id, func(ctx context.Context) error {
		return f.mirror.Set(ctx, collection, id, doc)
	})
	return err
}

func (f *Fallback) SetMerge(ctx context.Context, collection, id string, fields Fields) error {
	err := f.remote.SetMerge(ctx, collection, id, fields)
	f.mirrorWrite(ctx, collection, id, func(ctx context.Context) error {
		return f.mirror.SetMerge(ctx, collection, id, fields)
	})
	return err
}

func (f *Fallback) Delete(ctx context.Context, collection, id string) error {
	err := f.remote.Delete(ctx, collection, id)
	f.mirrorWrite(ctx, collection, id, func(ctx context.Context) error {
		return f.mirror.Delete(ctx, collection, id)
	})
	return err
}

// Subscribe delegates to the remote store when it supports push;
// otherwise it reports ErrSubscribeUnavailable so the caller can poll.
func (f *Fallback) Subscribe(ctx context.Context, collection, id string) (<-chan Fields, func(), error) {
	sub, ok := f.remote.(Subscriber)
	if !ok {
		return nil, nil, ErrSubscribeUnavailable
	}
	return sub.Subscribe(ctx, collection, id)
}

func (f *Fallback) mirrorWrite(ctx context.Context, collection, id string, fn func(context.Context) error) {
	if f.mirror == nil {
		return
	}
	if err := fn(ctx); err != nil {
		f.log.Warn().Err(err).Str("doc", collection+"/"+id).Msg("Mirror write failed")
	}
}
