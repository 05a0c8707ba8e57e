// Package embedcache memoises embeddings in Redis in front of any embedder.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultKeyPrefix = "newsvec:emb:"
)

// Embedder is the wrapped embedding source.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Cache serves embeddings from Redis and asks next only for misses. Redis
// failures are logged and treated as misses.
type Cache struct {
	client redis.Cmdable
	next   Embedder
	model  string
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func New(client redis.Cmdable, next Embedder, model string, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: client,
		next:   next,
		model:  model,
		ttl:    ttl,
		prefix: DefaultKeyPrefix,
		logger: logger,
	}
}

// Key returns the cache key for text under the configured model.
func (c *Cache) Key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// GenerateEmbeddings returns one vector per text in input order.
func (c *Cache) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.Key(t)
	}

	out := make([][]float32, len(texts))
	c.lookup(ctx, keys, out)

	// texts still missing, deduplicated
	var misses []string
	pending := make(map[string][]int)
	for i, v := range out {
		if v != nil {
			continue
		}
		if _, ok := pending[texts[i]]; !ok {
			misses = append(misses, texts[i])
		}
		pending[texts[i]] = append(pending[texts[i]], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vectors, err := c.next.GenerateEmbeddings(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(misses) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(misses), len(vectors))
	}

	for j, text := range misses {
		for _, i := range pending[text] {
			out[i] = vectors[j]
		}
	}
	c.store(ctx, misses, vectors)

	c.logger.Debug("embedding cache",
		zap.Int("requested", len(texts)),
		zap.Int("misses", len(misses)),
	)
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, keys []string, out [][]float32) {
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		return
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := decodeVector([]byte(s))
		if err != nil {
			c.logger.Warn("discarding corrupt cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[i] = vec
	}
}

func (c *Cache) store(ctx context.Context, texts []string, vectors [][]float32) {
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, t := range texts {
			p.Set(ctx, c.Key(t), encodeVector(vectors[i]), c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

var errCorruptVector = errors.New("vector byte length is not a multiple of 4")

// encodeVector stores float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 || len(b) == 0 {
		return nil, errCorruptVector
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
