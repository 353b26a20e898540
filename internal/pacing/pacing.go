package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pauser blocks for a settle interval between browser actions.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Pacer sleeps for the requested duration plus optional uniform jitter.
type Pacer struct {
	jitter time.Duration
	mu     sync.Mutex
	rng    *rand.Rand
}

func NewPacer(jitter time.Duration) *Pacer {
	return &Pacer{
		jitter: jitter,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

func (p *Pacer) Pause(ctx context.Context, d time.Duration) error {
	wait := d + p.calculateJitter()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pacer) calculateJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.Int64N(int64(p.jitter)))
}

// Recorder is a Pauser that never sleeps and remembers every request.
type Recorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *Recorder) Pause(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.pauses = append(r.pauses, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *Recorder) Pauses() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]time.Duration, len(r.pauses))
	copy(out, r.pauses)
	return out
}

// Count returns how many pauses of exactly d were requested.
func (r *Recorder) Count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.pauses {
		if p == d {
			n++
		}
	}
	return n
}
