// Package snapshot publishes finished reports to Redis for downstream
// consumers. The report command only calls Publish; nothing it does depends
// on a previous run. Get and Latest are the read side for those consumers.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a snapshot is kept.
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrNotFound indicates no snapshot exists under the requested key.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshot indicates a stored value could not be decoded.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Publisher stores snapshots in Redis.
type Publisher struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPublisher creates a publisher. A ttl of zero or less uses DefaultTTL.
func NewPublisher(redisClient *redis.Client, ttl time.Duration) *Publisher {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Publisher{
		redis:  redisClient,
		ttl:    ttl,
		logger: logging.NewLogger("snapshot"),
	}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Publish stores snap under its run key and moves the latest pointer to it.
// Both writes happen in one transaction.
func (p *Publisher) Publish(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if snap.RunID == "" || snap.Key == "" {
		return fmt.Errorf("%w: run id and key are required", ErrInvalidSnapshot)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	runKey := snap.Key + ":" + snap.RunID
	latestKey := snap.Key + ":latest"

	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKey, data, p.ttl)
		pipe.Set(ctx, latestKey, snap.RunID, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	p.logger.Info().
		Str("key", runKey).
		Int("rows", len(snap.Rows)).
		Dur("ttl", p.ttl).
		Msg("Snapshot published")

	return nil
}

// Get loads the snapshot written by runID.
func (p *Publisher) Get(ctx context.Context, key Key, runID string) (*Snapshot, error) {
	data, err := p.redis.Get(ctx, key.Run(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

// Latest loads the most recently published snapshot for key.
func (p *Publisher) Latest(ctx context.Context, key Key) (*Snapshot, error) {
	runID, err := p.redis.Get(ctx, key.Latest()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return p.Get(ctx, key, runID)
}
