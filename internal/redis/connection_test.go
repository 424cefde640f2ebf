package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/factsync/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:         addr,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PingTimeout:  time.Second,
	}
}

func newTestConnection(t *testing.T) (*Connection, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	conn, err := New(testOptions(m.Addr()), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, m
}

func TestConnection_Unconfigured(t *testing.T) {
	conn, err := New(ConnectOptions{}, logger.Nop())
	require.NoError(t, err)

	assert.False(t, conn.Configured())
	assert.Equal(t, StateUnconfigured, conn.State())
	assert.ErrorIs(t, conn.Put(context.Background(), "k", "v"), ErrStoreUnconfigured)
	assert.ErrorIs(t, conn.Reconnect(context.Background()), ErrStoreUnconfigured)
	assert.ErrorIs(t, conn.Ping(context.Background()), ErrStoreUnconfigured)
	_, err = conn.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreUnconfigured)
	assert.NoError(t, conn.Close())
}

func TestConnection_InvalidOptions(t *testing.T) {
	opts := testOptions("localhost:6379")
	opts.PingTimeout = 0
	_, err := New(opts, logger.Nop())
	assert.Error(t, err)
}

func TestConnection_LazyConnectAndPut(t *testing.T) {
	conn, m := newTestConnection(t)
	assert.Equal(t, StateDisconnected, conn.State(), "no network I/O before first use")

	require.NoError(t, conn.Put(context.Background(), "ip.control.publicIp", `{"public_ip":"203.0.113.7"}`))
	assert.Equal(t, StateConnected, conn.State())
	assert.Equal(t, 1, conn.Connects())

	got, err := m.Get("ip.control.publicIp")
	require.NoError(t, err)
	assert.Equal(t, `{"public_ip":"203.0.113.7"}`, got)
	assert.Equal(t, time.Duration(0), m.TTL("ip.control.publicIp"), "no ttl is managed")

	require.NoError(t, conn.Put(context.Background(), "ip.control.publicIp", "second"))
	got, _ = m.Get("ip.control.publicIp")
	assert.Equal(t, "second", got, "last write wins")
	assert.Equal(t, 1, conn.Connects(), "healthy handle is reused")
}

func TestConnection_Get(t *testing.T) {
	conn, m := newTestConnection(t)
	require.NoError(t, m.Set("timestamp.servertime", "value"))

	v, err := conn.Get(context.Background(), "timestamp.servertime")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = conn.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnection_HealthCheckFailureReconnects(t *testing.T) {
	conn, m := newTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.Put(ctx, "k", "1"))
	require.Equal(t, 1, conn.Connects())

	m.SetError("LOADING dataset in memory")
	err := conn.Put(ctx, "k", "2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreConnection)
	assert.Equal(t, StateDisconnected, conn.State(), "unhealthy handle is discarded")

	m.SetError("")
	require.NoError(t, conn.Put(ctx, "k", "3"))
	assert.Equal(t, 2, conn.Connects())

	got, _ := m.Get("k")
	assert.Equal(t, "3", got)
}

func TestConnection_ServerRestart(t *testing.T) {
	conn, m := newTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.Put(ctx, "k", "before"))

	m.Close()
	err := conn.Put(ctx, "k", "during")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreConnection)

	require.NoError(t, m.Restart())
	require.NoError(t, conn.Put(ctx, "k", "after"))

	got, _ := m.Get("k")
	assert.Equal(t, "after", got)
}

func TestConnection_Reconnect(t *testing.T) {
	conn, _ := newTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Reconnect(ctx))
	assert.Equal(t, 2, conn.Connects())
	assert.Equal(t, StateConnected, conn.State())

	require.NoError(t, conn.Close())
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConnection_UnreachableHost(t *testing.T) {
	m := miniredis.RunT(t)
	addr := m.Addr()
	m.Close()

	conn, err := New(testOptions(addr), logger.Nop())
	require.NoError(t, err)

	err = conn.Put(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrStoreConnection)
	assert.Equal(t, 0, conn.Connects())
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(context.DeadlineExceeded))
	assert.False(t, isConnectionError(redis.Nil))
	assert.True(t, isConnectionError(redis.ErrClosed))
}
