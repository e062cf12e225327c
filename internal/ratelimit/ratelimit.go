// Package ratelimit implements C2: per-provider request pacing with capped
// exponential backoff retry on transient provider errors.
package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/providers"
)

// Config holds the pacing and retry parameters for every provider, mirroring
// the defaults in internal/config.
type Config struct {
	MinDelay      time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
}

// Limiter paces calls per provider tag behind a minimum delay, and
// retries transient failures with jittered exponential backoff. Each
// provider tag gets its own lane: every attempt waits until MinDelay has
// passed since the previous attempt on that lane started. The lane is
// released once that wait is over, so fn bodies for the same tag run
// concurrently when callers overlap; different tags never wait on each
// other.
type Limiter struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	workers map[string]*worker
}

// worker owns the serial execution lane for one provider tag: calls through
// RunStep for the same tag block each other until minDelay has elapsed.
type worker struct {
	last time.Time
	mu   sync.Mutex
}

// New creates a Limiter. cfg's zero values are replaced with defaults
// (750ms min delay, 3 retries, 2s backoff base, 30s backoff cap).
func New(cfg Config, log zerolog.Logger) *Limiter {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 750 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Limiter{
		cfg:     cfg,
		log:     log.With().Str("component", "ratelimit").Logger(),
		workers: make(map[string]*worker),
	}
}

func (l *Limiter) workerFor(tag string) *worker {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.workers[tag]
	if !ok {
		w = &worker{}
		l.workers[tag] = w
	}
	return w
}

// RunStep executes fn under tag's pacing lane, retrying on transient
// provider errors with capped exponential backoff plus equal jitter. label
// is used only for logging. It returns immediately on a non-transient
// error, a cancellation, or once MaxRetries retries (MaxRetries+1 attempts)
// have been exhausted.
func (l *Limiter) RunStep(ctx context.Context, tag, label string, fn func(ctx context.Context) error) error {
	w := l.workerFor(tag)

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return providers.NewCancelled(tag, label, err)
		}

		w.waitTurn(l.cfg.MinDelay)

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if providers.IsCancelled(err) {
			return err
		}
		if !providers.IsTransient(err) {
			return err
		}
		if attempt == l.cfg.MaxRetries {
			break
		}

		delay := l.backoff(attempt)
		l.log.Warn().
			Str("provider", tag).
			Str("step", label).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Err(err).
			Msg("retrying after transient provider error")

		select {
		case <-ctx.Done():
			return providers.NewCancelled(tag, label, ctx.Err())
		case <-time.After(delay):
		}
	}

	l.log.Error().
		Str("provider", tag).
		Str("step", label).
		Int("retries", l.cfg.MaxRetries).
		Err(lastErr).
		Msg("exhausted retries")
	return lastErr
}

// backoff returns min(base*2^attempt, cap) plus equal jitter in [0, capped/2],
// so the sleep never drops below the capped exponential value itself.
func (l *Limiter) backoff(attempt int) time.Duration {
	raw := float64(l.cfg.BackoffBase) * math.Pow(2, float64(attempt))
	capped := math.Min(raw, float64(l.cfg.BackoffCap))
	return time.Duration(capped + rand.Float64()*capped/2)
}

// waitTurn blocks until minDelay has elapsed since the lane's previous call.
func (w *worker) waitTurn(minDelay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.last.IsZero() {
		if elapsed := time.Since(w.last); elapsed < minDelay {
			time.Sleep(minDelay - elapsed)
		}
	}
	w.last = time.Now()
}
