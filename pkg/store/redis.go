package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
)

const (
	createdAtField = "_createdAt"
	updatedAtField = "_updatedAt"
)

// KEYS[1] doc, KEYS[2] index; ARGV[1] id, ARGV[2] now, ARGV[3..] field/value pairs
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], '_createdAt', ARGV[2], '_updatedAt', ARGV[2])
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] doc, KEYS[2] index; ARGV[1] id, ARGV[2] now, ARGV[3..] field/value pairs
var setScript = redis.NewScript(`
local created = redis.call('HGET', KEYS[1], '_createdAt')
if not created then
	created = ARGV[2]
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], '_createdAt', created, '_updatedAt', ARGV[2])
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] doc; ARGV[1] now, ARGV[2] pair count n, then n field/value pairs, then fields to remove
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local n = tonumber(ARGV[2])
redis.call('HSET', KEYS[1], '_updatedAt', ARGV[1])
for i = 3, 2 + 2 * n, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
for i = 3 + 2 * n, #ARGV do
	redis.call('HDEL', KEYS[1], ARGV[i])
end
return 1
`)

// KEYS[1] doc; ARGV[1] field, ARGV[2] delta, ARGV[3] now
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local value = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[1], '_updatedAt', ARGV[3])
return value
`)

// KEYS[1] doc, KEYS[2] index; ARGV[1] id
var deleteScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return 1
`)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	KeyPrefix  string
}

// RedisStore keeps each document in a hash of JSON-encoded field values, plus
// a set per collection indexing its ids
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient creates a Redis client and verifies connectivity
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps a connected client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gamut"
	}
	return &RedisStore{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Client returns the underlying Redis client
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", r.prefix, collection, id)
}

func (r *RedisStore) indexKey(collection string) string {
	return fmt.Sprintf("%s:idx:%s", r.prefix, collection)
}

func (r *RedisStore) timestamp() string {
	return r.now().Format(time.RFC3339Nano)
}

// Get reads a document hash
func (r *RedisStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	values, err := r.client.HGetAll(ctx, r.docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(id, values)
}

// Set replaces a document, keeping its creation time
func (r *RedisStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	args, err := r.writeArgs(collection, id, fields)
	if err != nil {
		return err
	}
	keys := []string{r.docKey(collection, id), r.indexKey(collection)}
	if err := setScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Create writes a document only if its key does not exist
func (r *RedisStore) Create(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	args, err := r.writeArgs(collection, id, fields)
	if err != nil {
		return err
	}
	keys := []string{r.docKey(collection, id), r.indexKey(collection)}
	created, err := createScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis create failed: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Add writes a document under a generated id
func (r *RedisStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := ids.NewLower()
	if err := r.Create(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into an existing document atomically
func (r *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	sets, removals := splitPatch(fields)
	pairs, err := encodePairs(sets)
	if err != nil {
		return err
	}

	args := []interface{}{r.timestamp(), len(pairs) / 2}
	args = append(args, pairs...)
	for _, k := range removals {
		args = append(args, k)
	}

	updated, err := updateScript.Run(ctx, r.client, []string{r.docKey(collection, id)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis update failed: %w", err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document and its index entry
func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	keys := []string{r.docKey(collection, id), r.indexKey(collection)}
	if err := deleteScript.Run(ctx, r.client, keys, id).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Query scans the collection index and filters documents client side
func (r *RedisStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	encoded, err := encodeFilters(filters)
	if err != nil {
		return nil, err
	}

	members, err := r.client.SMembers(ctx, r.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	sort.Strings(members)

	results := make([]*Document, 0)
	if len(members) == 0 {
		return results, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(members))
	for i, id := range members {
		cmds[i] = pipe.HGetAll(ctx, r.docKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	for i, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil || len(values) == 0 {
			continue
		}
		doc, err := decodeHash(members[i], values)
		if err != nil {
			return nil, err
		}
		if matches(doc, encoded, filters) {
			results = append(results, doc)
		}
	}
	return results, nil
}

// Increment runs HINCRBY inside a script so missing documents are not created
func (r *RedisStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := validateKey(collection, id); err != nil {
		return 0, err
	}
	if !namePattern.MatchString(field) {
		return 0, fmt.Errorf("%w: field %q", ErrInvalidField, field)
	}

	value, err := incrementScript.Run(ctx, r.client, []string{r.docKey(collection, id)}, field, delta, r.timestamp()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, ErrNotANumber
		}
		return 0, fmt.Errorf("redis increment failed: %w", err)
	}
	return value, nil
}

// Ping checks Redis connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) writeArgs(collection, id string, fields map[string]interface{}) ([]interface{}, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	pairs, err := encodePairs(fields)
	if err != nil {
		return nil, err
	}
	args := []interface{}{id, r.timestamp()}
	return append(args, pairs...), nil
}

func encodePairs(fields map[string]interface{}) ([]interface{}, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		encoded, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		pairs = append(pairs, k, string(encoded))
	}
	return pairs, nil
}

func decodeHash(id string, values map[string]string) (*Document, error) {
	doc := &Document{ID: id, Fields: make(map[string]interface{}, len(values))}
	for k, raw := range values {
		switch k {
		case createdAtField:
			doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, raw)
		case updatedAtField:
			doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, raw)
		default:
			var v interface{}
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("failed to decode field %s of %s: %w", k, id, err)
			}
			doc.Fields[k] = v
		}
	}
	return doc, nil
}
