package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan/pkg/types"
)

// Store persists detection results by key
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore keeps detection results in redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on top of an existing redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "faces:"}
}

// Get returns the cached value; a missing key is not an error
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key for ttl
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// Cached memoizes another detector's results keyed by the source content and,
// for detectors that expose a CacheNamespace, by that namespace. Cache failures are logged and never fail detection.
type Cached struct {
	inner FaceDetector
	store Store
	ttl   time.Duration
	log   logrus.FieldLogger
}

// NewCached wraps inner with a result cache
func NewCached(inner FaceDetector, store Store, ttl time.Duration, log logrus.FieldLogger) *Cached {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cached{inner: inner, store: store, ttl: ttl, log: log}
}

type namespaced interface {
	CacheNamespace() string
}

func (c *Cached) key(src Source) string {
	key := SourceKey(src)
	if ns, ok := c.inner.(namespaced); ok {
		return ns.CacheNamespace() + ":" + key
	}
	return key
}

// DetectFaces returns cached faces for src or asks the wrapped detector
func (c *Cached) DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error) {
	key := c.key(src)
	log := c.log.WithField("key", key)

	if data, ok, err := c.store.Get(ctx, key); err != nil {
		log.WithError(err).Warn("face cache read failed")
	} else if ok {
		var faces []types.FaceRegion
		if err := json.Unmarshal(data, &faces); err == nil {
			log.WithField("faces", len(faces)).Debug("face cache hit")
			return faces, nil
		}
		log.Warn("discarding malformed face cache entry")
	}

	faces, err := c.inner.DetectFaces(ctx, src)
	if err != nil {
		return nil, err
	}
	if faces == nil {
		faces = []types.FaceRegion{}
	}

	data, err := json.Marshal(faces)
	if err != nil {
		return nil, fmt.Errorf("failed to encode faces: %w", err)
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		log.WithError(err).Warn("face cache write failed")
	}
	return faces, nil
}

// SourceKey identifies a source by content and size
func SourceKey(src Source) string {
	sum := sha256.Sum256(src.Data)
	return fmt.Sprintf("%s:%dx%d", hex.EncodeToString(sum[:]), src.Width, src.Height)
}
