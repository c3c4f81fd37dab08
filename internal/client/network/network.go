// Package network answers the question "can the remote store be reached right now".
package network

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultProbeTimeout bounds a single connectivity probe.
const DefaultProbeTimeout = 3 * time.Second

// Checker reports whether the device is online.
type Checker interface {
	IsOnline(ctx context.Context) bool
}

// Pinger is anything that can cheaply verify the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks connectivity by pinging the remote store with a short timeout.
// SetForcedOffline makes it report offline without touching the network.
type Probe struct {
	pinger  Pinger
	logger  *slog.Logger
	timeout time.Duration
	offline atomic.Bool
}

// NewProbe creates a connectivity probe
func NewProbe(pinger Pinger, logger *slog.Logger, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Probe{
		pinger:  pinger,
		logger:  logger,
		timeout: timeout,
	}
}

// SetForcedOffline toggles the manual offline switch
func (p *Probe) SetForcedOffline(offline bool) {
	p.offline.Store(offline)
}

// IsOnline implements Checker
func (p *Probe) IsOnline(ctx context.Context) bool {
	if p.offline.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		p.logger.Debug("Connectivity probe failed", "error", err)
		return false
	}
	return true
}

// Static is a Checker with a fixed answer.
type Static bool

// IsOnline implements Checker
func (s Static) IsOnline(context.Context) bool {
	return bool(s)
}
