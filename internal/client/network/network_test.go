package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProbe_IsOnline(t *testing.T) {
	calls := 0
	p := NewProbe(pingFunc(func(ctx context.Context) error {
		calls++
		return nil
	}), discardLogger(), time.Second)

	assert.True(t, p.IsOnline(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestProbe_PingFails(t *testing.T) {
	p := NewProbe(pingFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}), discardLogger(), time.Second)

	assert.False(t, p.IsOnline(context.Background()))
}

func TestProbe_Timeout(t *testing.T) {
	p := NewProbe(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), discardLogger(), 10*time.Millisecond)

	start := time.Now()
	assert.False(t, p.IsOnline(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbe_ForcedOffline(t *testing.T) {
	calls := 0
	p := NewProbe(pingFunc(func(ctx context.Context) error {
		calls++
		return nil
	}), discardLogger(), 0)

	p.SetForcedOffline(true)
	assert.False(t, p.IsOnline(context.Background()))
	assert.Zero(t, calls, "при ручном offline сеть не трогаем")

	p.SetForcedOffline(false)
	assert.True(t, p.IsOnline(context.Background()))
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).IsOnline(context.Background()))
	assert.False(t, Static(false).IsOnline(context.Background()))
}
