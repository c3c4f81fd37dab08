// Package changevector produces opaque per-write fingerprints.
//
// A change vector has the form "<device>:<unixMillis>:<counter>:<random>".
// The counter is a Lamport clock: it ticks on every local write and jumps past
// any counter observed in a remote vector, so vectors from one device are
// strictly ordered and never repeat.
package changevector

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces change vectors for one device.
type Generator struct {
	now      func() time.Time
	deviceID string
	counter  int64
	mu       sync.Mutex
}

// New creates a generator for deviceID. now defaults to time.Now.
func New(deviceID string, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{deviceID: deviceID, now: now}
}

// DeviceID returns the device the generator stamps vectors with.
func (g *Generator) DeviceID() string {
	return g.deviceID
}

// Next returns a fresh change vector.
func (g *Generator) Next() string {
	g.mu.Lock()
	g.counter++
	counter := g.counter
	g.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%d:%d:%s", g.deviceID, g.now().UnixMilli(), counter, suffix)
}

// Observe advances the clock past the counter carried by a remote vector.
// Vectors that do not parse are ignored.
func (g *Generator) Observe(vector string) {
	parsed, ok := Parse(vector)
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if parsed.Counter > g.counter {
		g.counter = parsed.Counter
	}
}

// Counter returns the current clock value.
func (g *Generator) Counter() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}

// Vector is a parsed change vector.
type Vector struct {
	Time     time.Time
	DeviceID string
	Random   string
	Counter  int64
}

// Parse splits a change vector. The device id may itself contain colons.
func Parse(vector string) (Vector, bool) {
	parts := strings.Split(vector, ":")
	if len(parts) < 4 {
		return Vector{}, false
	}
	n := len(parts)

	millis, err := strconv.ParseInt(parts[n-3], 10, 64)
	if err != nil {
		return Vector{}, false
	}
	counter, err := strconv.ParseInt(parts[n-2], 10, 64)
	if err != nil {
		return Vector{}, false
	}

	return Vector{
		DeviceID: strings.Join(parts[:n-3], ":"),
		Time:     time.UnixMilli(millis),
		Counter:  counter,
		Random:   parts[n-1],
	}, true
}
