package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, -1, c.MaxReconnects())
	assert.Equal(t, 2*time.Second, c.ReconnectWait())
	assert.Equal(t, time.Second, c.Backoff())
	assert.False(t, c.IsHealthy())
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(500*time.Millisecond),
		WithName("cubestream-test"),
		WithCredentials("user", "pass"),
		WithLogger(slog.Default()),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, c.MaxReconnects())
	assert.Equal(t, 500*time.Millisecond, c.ReconnectWait())
	assert.Equal(t, "cubestream-test", c.clientName)
	assert.Equal(t, "user", c.username)
}

func TestConnectionStatus_String(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(99): "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3),
		WithMaxBackoff(2*time.Second),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c.recordFailure()
	}

	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(3), c.Failures())
	assert.Greater(t, c.Backoff(), time.Second)
}

func TestCircuitBreaker_ResetOnSuccess(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestConnect_FailsFastWhileCircuitOpen(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestWaitForConnection_TimesOut(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, c.WaitForConnection(ctx))
}

func TestRTT_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "secret"), WithToken("tok"))
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	assert.Empty(t, c.username, "credentials cleared on close")
	assert.Empty(t, c.password)
	assert.Empty(t, c.token)
}

func TestIsKVNotFoundError(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(stderrors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(stderrors.New("permission denied")))
}

func TestKVBucketOps_RequireConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.GetKeyValueBucket(context.Background(), "snapshots")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.DeleteKeyValueBucket(context.Background(), "snapshots"), ErrNotConnected)
}
