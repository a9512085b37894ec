package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"tokenticker/internal/feed"
)

const testToken = "5BYrEaDL7NhFjJ9gmyZqVQoAUBg3PqruqPa7fnsWpump"

func newTestMirror(t *testing.T) (*Mirror, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := NewMirror(rdb, Options{
		TokenAddress: testToken,
		KeyPrefix:    "token:snapshot",
		Channel:      "token:snapshot:updates",
		TTL:          time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m, mr, rdb
}

func TestMirror_PublishStoresWithTTL(t *testing.T) {
	m, mr, _ := newTestMirror(t)
	snap := feed.Initial().Failed(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, m.Publish(t.Context(), snap))

	key := "token:snapshot:" + testToken
	require.True(t, mr.Exists(key))
	require.Equal(t, time.Minute, mr.TTL(key))

	got, err := m.Latest(t.Context(), testToken)
	require.NoError(t, err)
	require.Equal(t, snap, got)

	mr.FastForward(time.Minute + time.Second)
	_, err = m.Latest(t.Context(), testToken)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMirror_PublishNotifiesSubscribers(t *testing.T) {
	m, _, rdb := newTestMirror(t)

	sub := rdb.Subscribe(t.Context(), "token:snapshot:updates")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	snap := feed.Fallback(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, m.Publish(t.Context(), snap))

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got feed.Snapshot
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, snap, got)
}

func TestMirror_LatestMissing(t *testing.T) {
	m, _, _ := newTestMirror(t)
	_, err := m.Latest(t.Context(), "unknown")
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMirror_LatestCorrupt(t *testing.T) {
	m, mr, _ := newTestMirror(t)
	require.NoError(t, mr.Set("token:snapshot:"+testToken, "{nope"))

	_, err := m.Latest(t.Context(), testToken)
	require.ErrorContains(t, err, "decoding snapshot")
}

func TestMirror_Ping(t *testing.T) {
	m, mr, _ := newTestMirror(t)
	require.Equal(t, "up", m.Ping(t.Context()))

	mr.Close()
	require.Contains(t, m.Ping(t.Context()), "down")
}

func TestMirror_PublishReturnsErrorWithoutLogging(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	var logs bytes.Buffer
	m := NewMirror(rdb, Options{TokenAddress: testToken, KeyPrefix: "token:snapshot"},
		slog.New(slog.NewTextHandler(&logs, nil)))
	mr.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	err := m.Publish(ctx, feed.Initial())
	require.ErrorContains(t, err, "mirroring snapshot of "+testToken)
	require.Empty(t, logs.String(), "the caller reports publish failures")
}

func TestMirror_Restore(t *testing.T) {
	m, mr, _ := newTestMirror(t)

	_, ok := m.Restore(t.Context())
	require.False(t, ok)

	snap := feed.Initial().Failed(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, m.Publish(t.Context(), snap))
	got, ok := m.Restore(t.Context())
	require.True(t, ok)
	require.Equal(t, snap, got)

	require.NoError(t, mr.Set("token:snapshot:"+testToken, "{nope"))
	_, ok = m.Restore(t.Context())
	require.False(t, ok)
}
