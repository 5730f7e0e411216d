package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore implements Store and Subscriber on top of Redis. Each
// document is a hash whose fields hold raw JSON values, so merge
// writes are plain HSETs and field-level overwrite comes for free.
// Every write publishes the full document on a per-document channel,
// which backs Subscribe.
type RedisStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

// mergeScript applies a merge write. The updatedAt field gets special
// treatment: it must strictly increase across writes, so a value that
// is not greater than the stored one is bumped to stored+1. Returns
// the resulting document.
var mergeScript = redis.NewScript(`
for i = 1, #ARGV, 2 do
  local field = ARGV[i]
  local value = ARGV[i+1]
  if field == "updatedAt" then
    local prev = tonumber(redis.call('HGET', KEYS[1], field))
    local next = tonumber(value)
    if prev and next and next <= prev then
      value = string.format("%.0f", prev + 1)
    end
  end
  redis.call('HSET', KEYS[1], field, value)
end
return redis.call('HGETALL', KEYS[1])
`)

// NewRedisStore wraps an already-connected Redis client. Connection
// validation (ping) happens in database.NewRedisClient at startup, not
// here and never per call.
func NewRedisStore(rdb *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		log: log.With().Str("component", "docstore").Logger(),
	}
}

func docKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func colKey(collection string) string {
	return fmt.Sprintf("col:%s", collection)
}

func docChannel(collection, id string) string {
	return fmt.Sprintf("docs:%s:%s", collection, id)
}

// Get returns a single document or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, collection, id string) (Fields, error) {
	raw, err := s.rdb.HGetAll(ctx, docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return fieldsFromStrings(raw), nil
}

// GetAll returns every document in the collection keyed by id.
func (s *RedisStore) GetAll(ctx context.Context, collection string) (map[string]Fields, error) {
	ids, err := s.rdb.SMembers(ctx, colKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.HGetAll(ctx, docKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}

	out := make(map[string]Fields, len(ids))
	for id, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil || len(raw) == 0 {
			continue // Deleted between SMEMBERS and HGETALL
		}
		out[id] = fieldsFromStrings(raw)
	}
	return out, nil
}

// Set replaces the document wholesale.
func (s *RedisStore) Set(ctx context.Context, collection, id string, doc Fields) error {
	key := docKey(collection, id)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(doc) > 0 {
		pipe.HSet(ctx, key, fieldsToArgs(doc)...)
	}
	pipe.SAdd(ctx, colKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, collection, id, doc)
	return nil
}

// SetMerge overwrites only the given fields, bumping updatedAt if it
// would not strictly increase.
func (s *RedisStore) SetMerge(ctx context.Context, collection, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	res, err := mergeScript.Run(ctx, s.rdb, []string{docKey(collection, id)}, fieldsToArgs(fields)...).Result()
	if err != nil {
		return fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	if err := s.rdb.SAdd(ctx, colKey(collection), id).Err(); err != nil {
		return fmt.Errorf("index %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, collection, id, flatToFields(res))
	return nil
}

// Delete removes the document and its index entry.
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, colKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe delivers the full document on every write to it, via the
// per-document pub/sub channel.
func (s *RedisStore) Subscribe(ctx context.Context, collection, id string) (<-chan Fields, func(), error) {
	pubsub := s.rdb.Subscribe(ctx, docChannel(collection, id))

	// Force the subscription to be established before returning, so a
	// write that happens right after Subscribe is never missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s/%s: %w", collection, id, err)
	}

	out := make(chan Fields, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var f Fields
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("Discarding malformed document event")
				continue
			}
			select {
			case out <- f:
			default:
				// Subscriber is not keeping up; drop the stale state.
				// The next write delivers a fresher one.
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (s *RedisStore) publish(ctx context.Context, collection, id string, doc Fields) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, docChannel(collection, id), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("doc", collection+"/"+id).Msg("Publish failed")
	}
}

func fieldsFromStrings(raw map[string]string) Fields {
	f := make(Fields, len(raw))
	for k, v := range raw {
		f[k] = json.RawMessage(v)
	}
	return f
}

func fieldsToArgs(f Fields) []any {
	args := make([]any, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, string(v))
	}
	return args
}

func flatToFields(res any) Fields {
	flat, ok := res.([]any)
	if !ok {
		return Fields{}
	}
	f := make(Fields, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, kok := flat[i].(string)
		v, vok := flat[i+1].(string)
		if kok && vok {
			f[k] = json.RawMessage(v)
		}
	}
	return f
}
