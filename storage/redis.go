package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"autosearch/models"
)

const redisKeyPrefix = "autosearch:snapshot:"

// RedisStore keeps each search's snapshot in one hash: field = listing id,
// value = the listing as JSON.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects with a redis:// URL and checks the connection.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func snapshotKey(search string) string { return redisKeyPrefix + search }

func (rs *RedisStore) Load(ctx context.Context, search string) (models.Snapshot, error) {
	vals, err := rs.client.HGetAll(ctx, snapshotKey(search)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load %q: %w", search, err)
	}
	snap := make(models.Snapshot, len(vals))
	for id, raw := range vals {
		var l models.Listing
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("redis: load %q: decode %s: %w", search, id, err)
		}
		snap[id] = l
	}
	return snap, nil
}

// Replace deletes and rewrites the hash inside MULTI/EXEC.
func (rs *RedisStore) Replace(ctx context.Context, search string, snap models.Snapshot) error {
	fields := make([]interface{}, 0, len(snap)*2)
	for id, l := range snap {
		l.Search = search
		b, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("redis: replace %q: encode %s: %w", search, id, err)
		}
		fields = append(fields, id, string(b))
	}

	key := snapshotKey(search)
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: replace %q: %w", search, err)
	}
	return nil
}

func (rs *RedisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rs.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (rs *RedisStore) All(ctx context.Context) ([]models.Listing, error) {
	keys, err := rs.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis: fetch all: %w", err)
	}
	var out []models.Listing
	for _, key := range keys {
		snap, err := rs.Load(ctx, strings.TrimPrefix(key, redisKeyPrefix))
		if err != nil {
			return nil, err
		}
		out = append(out, snap.Listings()...)
	}
	return out, nil
}

func (rs *RedisStore) Clear(ctx context.Context) (int, error) {
	keys, err := rs.keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis: clear: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n := 0
	for _, key := range keys {
		c, err := rs.client.HLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: clear: %w", err)
		}
		n += int(c)
	}
	if err := rs.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis: clear: %w", err)
	}
	return n, nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

var _ SnapshotStore = (*RedisStore)(nil)
