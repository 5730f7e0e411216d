// Package watch observes a single document for external writes.
package watch

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/docstore"
)

// DefaultPollInterval is the polling cadence used when the store has no
// push mechanism.
const DefaultPollInterval = 2500 * time.Millisecond

// Handle is one running watch. Stop is idempotent and safe to call
// concurrently with deliveries.
type Handle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Stop ends the watch and waits for the delivery goroutine to exit.
// No callbacks run after Stop returns. Must not be called from inside
// the callback itself.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Start watches collection/id and invokes fn with the document state on
// every observed change. The store's push channel is preferred; when
// subscribing is unavailable or breaks, the watch degrades to polling
// at pollInterval, suppressing deliveries whose content is unchanged.
// fn is never invoked concurrently with itself.
func Start(ctx context.Context, store docstore.Store, collection, id string, pollInterval time.Duration, log zerolog.Logger, fn func(docstore.Fields)) *Handle {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	log = log.With().Str("collection", collection).Str("doc_id", id).Logger()

	// The subscription must be live before Start returns; a write
	// landing between Start and a deferred Subscribe would be lost,
	// and push mode has no catch-up read.
	if sub, ok := store.(docstore.Subscriber); ok {
		ch, stop, err := sub.Subscribe(ctx, collection, id)
		if err == nil {
			log.Debug().Msg("Watch running in push mode")
			go func() {
				defer close(h.done)
				defer stop()
				for {
					select {
					case <-ctx.Done():
						return
					case doc, ok := <-ch:
						if !ok {
							log.Warn().Msg("Push channel closed, falling back to polling")
							poll(ctx, store, collection, id, pollInterval, log, fn)
							return
						}
						fn(doc)
					}
				}
			}()
			return h
		}
		log.Warn().Err(err).Msg("Subscribe failed, falling back to polling")
	}

	go func() {
		defer close(h.done)
		poll(ctx, store, collection, id, pollInterval, log, fn)
	}()

	return h
}

func poll(ctx context.Context, store docstore.Store, collection, id string, interval time.Duration, log zerolog.Logger, fn func(docstore.Fields)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last docstore.Fields
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doc, err := store.Get(ctx, collection, id)
			if err != nil {
				if err != docstore.ErrNotFound {
					log.Debug().Err(err).Msg("Poll read failed")
				}
				continue
			}
			if reflect.DeepEqual(doc, last) {
				continue
			}
			last = doc.Clone()
			fn(doc)
		}
	}
}
