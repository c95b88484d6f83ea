package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheMichaelB/jobhunt/internal/events"
)

// Each object is a hash {data, version, updated}. Versions come from a
// shared counter so a recreated key never reuses an old version. Object
// keys and the counter share the {jobhunt} hash tag, so the scripts touch
// a single slot on Redis Cluster.
var (
	putScript = redis.NewScript(`
local v = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "data", ARGV[1], "version", v, "updated", ARGV[2])
return v
`)

	putIfAbsentScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local v = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "data", ARGV[1], "version", v, "updated", ARGV[2])
return v
`)

	deleteIfVersionScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], "version")
if not v then
	return 1
end
if v ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)
)

// RedisStore implements ObjectStore on Redis hashes.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	prefix    prefixer
	logger    *events.Logger
	now       func() time.Time
}

// NewRedisStore wraps a client. Keys live under "{jobhunt}:obj:".
func NewRedisStore(client redis.UniversalClient, prefix string, logger *events.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: hashTag + ":obj:",
		prefix:    prefixer(strings.Trim(prefix, "/")),
		logger:    logger.WithField("component", "redis_store"),
		now:       time.Now,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.namespace + s.prefix.full(key)
}

const hashTag = "{jobhunt}"

func (s *RedisStore) seqKey() string {
	return hashTag + ":seq"
}

// Get returns the object body and attributes.
func (s *RedisStore) Get(ctx context.Context, key string) (*Object, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	if len(fields) == 0 {
		return nil, storeErr("get", key, ErrObjectNotFound)
	}

	data := []byte(fields["data"])
	return &Object{Attrs: s.attrs(key, fields), Data: data}, nil
}

// Put overwrites the object.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) (Attrs, error) {
	now := s.now().UTC()

	v, err := putScript.Run(ctx, s.client,
		[]string{s.redisKey(key), s.seqKey()},
		data, now.UnixMilli(),
	).Int64()
	if err != nil {
		return Attrs{}, storeErr("put", key, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":     key,
		"size":    len(data),
		"version": v,
	}).Debug("Wrote object to Redis")

	return Attrs{
		Key:     key,
		Size:    int64(len(data)),
		Version: strconv.FormatInt(v, 10),
		Updated: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// PutIfAbsent creates the object only if the hash does not exist.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error) {
	now := s.now().UTC()

	v, err := putIfAbsentScript.Run(ctx, s.client,
		[]string{s.redisKey(key), s.seqKey()},
		data, now.UnixMilli(),
	).Int64()
	if err != nil {
		return Attrs{}, storeErr("put_if_absent", key, err)
	}
	if v == 0 {
		return Attrs{}, storeErr("put_if_absent", key, ErrPreconditionFailed)
	}

	return Attrs{
		Key:     key,
		Size:    int64(len(data)),
		Version: strconv.FormatInt(v, 10),
		Updated: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// Delete removes the object, comparing versions inside a script when asked.
func (s *RedisStore) Delete(ctx context.Context, key string, ifVersion string) error {
	if ifVersion == "" {
		if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
			return storeErr("delete", key, err)
		}
		return nil
	}

	ok, err := deleteIfVersionScript.Run(ctx, s.client, []string{s.redisKey(key)}, ifVersion).Int64()
	if err != nil {
		return storeErr("delete", key, err)
	}
	if ok == 0 {
		return storeErr("delete", key, ErrPreconditionFailed)
	}
	return nil
}

// List scans for keys under prefix.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	match := s.namespace + escapeGlob(s.prefix.listPrefix(prefix)) + "*"

	keys, err := s.scan(ctx, match)
	if err != nil {
		return nil, storeErr("list", prefix, err)
	}

	var out []Attrs
	for _, rk := range keys {
		fields, err := s.client.HGetAll(ctx, rk).Result()
		if err != nil {
			return nil, storeErr("list", prefix, err)
		}
		if len(fields) == 0 {
			// deleted between SCAN and HGETALL
			continue
		}

		key := s.prefix.rel(strings.TrimPrefix(rk, s.namespace))
		out = append(out, s.attrs(key, fields))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// scan collects keys matching pattern. A cluster client scans every master,
// since SCAN only sees the node it runs on.
func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	scanNode := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, match, 100).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			keys = append(keys, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}

	if cc, ok := s.client.(*redis.ClusterClient); ok {
		err := cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return scanNode(ctx, c)
		})
		return keys, err
	}
	return keys, scanNode(ctx, s.client)
}

// Stat reads object metadata.
func (s *RedisStore) Stat(ctx context.Context, key string) (Attrs, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return Attrs{}, storeErr("stat", key, ErrObjectNotFound)
		}
		return Attrs{}, err
	}
	return obj.Attrs, nil
}

func (s *RedisStore) attrs(key string, fields map[string]string) Attrs {
	attrs := Attrs{
		Key:     key,
		Size:    int64(len(fields["data"])),
		Version: fields["version"],
	}
	if ms, err := strconv.ParseInt(fields["updated"], 10, 64); err == nil {
		attrs.Updated = time.UnixMilli(ms).UTC()
	}
	return attrs
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
