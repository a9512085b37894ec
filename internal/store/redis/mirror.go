package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenticker/internal/feed"
)

var _ feed.Sink = (*Mirror)(nil)

// ErrNoSnapshot is returned by Latest when nothing is stored for the token.
var ErrNoSnapshot = errors.New("redis: no snapshot stored")

// Mirror stores the latest snapshot of each token in Redis and announces every
// update on a pub/sub channel so other instances can follow the feed.
type Mirror struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	channel string
	ttl     time.Duration
	address string
}

// Options configures a Mirror.
type Options struct {
	TokenAddress string
	KeyPrefix    string
	Channel      string
	TTL          time.Duration
}

func NewMirror(client *redis.Client, opts Options, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		client:  client,
		logger:  logger,
		prefix:  opts.KeyPrefix,
		channel: opts.Channel,
		ttl:     opts.TTL,
		address: opts.TokenAddress,
	}
}

// Ping checks the connection to the Redis server.
func (m *Mirror) Ping(ctx context.Context) string {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Sprintf("down: %v", err)
	}
	return "up"
}

// keyFor returns the Redis key holding the snapshot of a token.
func (m *Mirror) keyFor(address string) string {
	return fmt.Sprintf("%s:%s", m.prefix, address)
}

// Publish writes the snapshot and notifies subscribers in one round trip.
func (m *Mirror) Publish(ctx context.Context, s feed.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.keyFor(m.address), payload, m.ttl)
	if m.channel != "" {
		pipe.Publish(ctx, m.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirroring snapshot of %s: %w", m.address, err)
	}
	return nil
}

// Latest returns the stored snapshot for a token.
func (m *Mirror) Latest(ctx context.Context, address string) (feed.Snapshot, error) {
	raw, err := m.client.Get(ctx, m.keyFor(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return feed.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return feed.Snapshot{}, err
	}

	var s feed.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return feed.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}

// Restore loads the mirrored snapshot of the configured token, typically to
// seed a poller after a restart. ok is false when nothing usable is stored.
func (m *Mirror) Restore(ctx context.Context) (s feed.Snapshot, ok bool) {
	s, err := m.Latest(ctx, m.address)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		m.logger.Debug("no mirrored snapshot to restore", "token", m.address)
		return feed.Snapshot{}, false
	case err != nil:
		m.logger.Warn("failed to restore mirrored snapshot", "token", m.address, "err", err)
		return feed.Snapshot{}, false
	}
	m.logger.Info("restored mirrored snapshot", "token", m.address, "updatedAt", s.UpdatedAt)
	return s, true
}
