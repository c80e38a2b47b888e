package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// DefaultKeyPrefix namespaces incident keys when no prefix is configured.
const DefaultKeyPrefix = "sentinel:incident:"

// Each incident lives in a hash {version, body}; a set indexes the check IDs.
// The scripts run atomically on the server, which makes the version test and
// the write a single compare-and-swap.
var (
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'version', 1, 'body', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1`)

	updateScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'body', ARGV[3])
return 1`)

	deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[2])
return 1`)
)

// Redis stores incidents in Redis hashes.
type Redis struct {
	client *redis.Client
	prefix string
}

// ConnectRedis opens a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("store: redis address is empty")
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(checkID string) string { return r.prefix + checkID }
func (r *Redis) indexKey() string          { return r.prefix + "_index" }

func (r *Redis) Get(ctx context.Context, checkID string) (types.Incident, bool, error) {
	vals, err := r.client.HMGet(ctx, r.key(checkID), "version", "body").Result()
	if err != nil {
		return types.Incident{}, false, fmt.Errorf("store: redis get %q: %w", checkID, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return types.Incident{}, false, nil
	}
	version, err := strconv.ParseUint(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return types.Incident{}, false, fmt.Errorf("store: redis version of %q: %w", checkID, err)
	}
	inc, err := decodeIncident([]byte(fmt.Sprint(vals[1])), version)
	if err != nil {
		return types.Incident{}, false, err
	}
	return inc, true, nil
}

func (r *Redis) Create(ctx context.Context, inc types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	inc.Version = 1
	body, err := json.Marshal(inc)
	if err != nil {
		return false, fmt.Errorf("store: encode incident: %w", err)
	}
	n, err := createScript.Run(ctx, r.client,
		[]string{r.key(inc.CheckID), r.indexKey()}, body, inc.CheckID).Int()
	if err != nil {
		return false, fmt.Errorf("store: redis create %q: %w", inc.CheckID, err)
	}
	return n == 1, nil
}

func (r *Redis) Update(ctx context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	inc.Version = prev.Version + 1
	body, err := json.Marshal(inc)
	if err != nil {
		return false, fmt.Errorf("store: encode incident: %w", err)
	}
	n, err := updateScript.Run(ctx, r.client,
		[]string{r.key(inc.CheckID)},
		strconv.FormatUint(prev.Version, 10), strconv.FormatUint(inc.Version, 10), body).Int()
	if err != nil {
		return false, fmt.Errorf("store: redis update %q: %w", inc.CheckID, err)
	}
	return n == 1, nil
}

func (r *Redis) Delete(ctx context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	n, err := deleteScript.Run(ctx, r.client,
		[]string{r.key(inc.CheckID), r.indexKey()},
		strconv.FormatUint(prev.Version, 10), inc.CheckID).Int()
	if err != nil {
		return false, fmt.Errorf("store: redis delete %q: %w", inc.CheckID, err)
	}
	return n == 1, nil
}

func (r *Redis) List(ctx context.Context) ([]types.Incident, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: redis list: %w", err)
	}
	sort.Strings(ids)

	out := make([]types.Incident, 0, len(ids))
	for _, id := range ids {
		inc, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, inc)
		}
	}
	return out, nil
}
