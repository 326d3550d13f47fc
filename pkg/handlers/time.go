package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// SystemTime is the production clock.
type SystemTime struct {
	mu    sync.RWMutex
	epoch identifiers.Epoch
}

// NewSystemTime returns a wall-clock handler at epoch 0.
func NewSystemTime() *SystemTime { return &SystemTime{} }

func (t *SystemTime) Now(ctx context.Context) time.Time { return time.Now().UTC() }

func (t *SystemTime) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return aerr.Wrap(aerr.CodeTimeout, ctx.Err(), "sleep interrupted")
	}
}

func (t *SystemTime) CurrentEpoch(ctx context.Context) identifiers.Epoch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

// SetEpoch advances the epoch; lower values are ignored.
func (t *SystemTime) SetEpoch(e identifiers.Epoch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch = t.epoch.Max(e)
}

// VirtualClock is the deterministic clock for testing and simulation. Time
// only moves when the test advances it; sleeps complete immediately at the
// advanced time, making every timer a cooperative suspension point.
type VirtualClock struct {
	mu    sync.RWMutex
	now   time.Time
	epoch identifiers.Epoch
}

// NewVirtualClock starts at the Unix epoch.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Unix(0, 0).UTC()}
}

func (t *VirtualClock) Now(ctx context.Context) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now
}

// Sleep advances the virtual clock by d and returns.
func (t *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = t.now.Add(d)
	return nil
}

func (t *VirtualClock) CurrentEpoch(ctx context.Context) identifiers.Epoch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

// Advance moves the clock forward by d.
func (t *VirtualClock) Advance(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = t.now.Add(d)
}

// SetEpoch advances the epoch; lower values are ignored.
func (t *VirtualClock) SetEpoch(e identifiers.Epoch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch = t.epoch.Max(e)
}
