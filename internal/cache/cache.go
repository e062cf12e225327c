// Package cache implements C8: the home dashboard snapshot store, with
// single-flight-coalesced refresh and a single-consumer render hook.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sorelab/sore/internal/events"
)

// FieldError records one per-field failure observed during a refresh.
type FieldError struct {
	Field   string
	Message string
}

// Snapshot is the immutable, atomically-swapped payload GetSnapshot serves.
type Snapshot struct {
	Data        map[string]interface{}
	Errors      []FieldError
	Partial     bool
	RefreshedAt time.Time
}

// RefreshFunc fans a refresh out across whatever sub-records make up a
// snapshot, returning the new snapshot. Implementations are expected to
// populate Errors/Partial rather than returning an error:
// a refresh only returns an error when it cannot produce any snapshot at
// all (e.g. cancelled before starting).
type RefreshFunc func(ctx context.Context, homeOnly bool) (Snapshot, error)

const defaultRefreshInterval = 90 * time.Second

// Store is C8's cache: the latest Snapshot plus single-flight coalescing of
// concurrent non-forced refreshes.
type Store struct {
	refresh         RefreshFunc
	refreshInterval time.Duration
	events          *events.Manager
	log             zerolog.Logger

	mu               sync.RWMutex
	snapshot         Snapshot
	lastRefreshStart time.Time

	group      singleflight.Group
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc

	rendererMu sync.Mutex
	renderer   func(Snapshot)
}

// New creates a Store. refreshInterval defaults to 90s when
// zero.
func New(refresh RefreshFunc, refreshInterval time.Duration, em *events.Manager, log zerolog.Logger) *Store {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	return &Store{
		refresh:         refresh,
		refreshInterval: refreshInterval,
		events:          em,
		log:             log.With().Str("component", "cache").Logger(),
	}
}

// GetSnapshot returns the current snapshot by value.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetSnapshot atomically replaces the current snapshot, used to seed the
// store or to apply an externally computed value.
func (s *Store) SetSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	s.publish(snap)
}

// SetRenderer installs the single render consumer invoked after every
// published snapshot.
func (s *Store) SetRenderer(fn func(Snapshot)) {
	s.rendererMu.Lock()
	defer s.rendererMu.Unlock()
	s.renderer = fn
}

// RenderCachedImmediately invokes the installed renderer with the current
// snapshot if one exists, returning whether it did.
func (s *Store) RenderCachedImmediately() bool {
	snap := s.GetSnapshot()
	if snap.RefreshedAt.IsZero() {
		return false
	}
	s.rendererMu.Lock()
	fn := s.renderer
	s.rendererMu.Unlock()
	if fn == nil {
		return false
	}
	fn(snap)
	return true
}

func (s *Store) publish(snap Snapshot) {
	s.rendererMu.Lock()
	fn := s.renderer
	s.rendererMu.Unlock()
	if fn != nil {
		fn(snap)
	}
	s.events.Emit(events.SnapshotRefreshed, "cache", map[string]interface{}{"partial": snap.Partial})
}

// RefreshSilent returns the cached snapshot unchanged when it's younger
// than refreshInterval and force is false. Otherwise it triggers a refresh;
// concurrent non-forced calls that land while one is already in flight
// receive the exact same in-flight result (single-flight coalescing).
func (s *Store) RefreshSilent(ctx context.Context, force, homeOnly bool) (Snapshot, error) {
	if !force {
		s.mu.RLock()
		fresh := !s.snapshot.RefreshedAt.IsZero() && time.Since(s.snapshot.RefreshedAt) < s.refreshInterval
		cached := s.snapshot
		s.mu.RUnlock()
		if fresh {
			return cached, nil
		}
	}
	return s.runCoalesced(ctx, homeOnly)
}

// RefreshNow always starts a new refresh. If one is already running it is
// cooperatively cancelled and replaced.
func (s *Store) RefreshNow(ctx context.Context, homeOnly bool) (Snapshot, error) {
	s.cancelMu.Lock()
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.cancelMu.Unlock()
	defer cancel()

	return s.doRefresh(runCtx, homeOnly)
}

func (s *Store) runCoalesced(ctx context.Context, homeOnly bool) (Snapshot, error) {
	key := "refresh"
	if homeOnly {
		key = "refresh_home"
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.doRefresh(ctx, homeOnly)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (s *Store) doRefresh(ctx context.Context, homeOnly bool) (Snapshot, error) {
	s.mu.Lock()
	s.lastRefreshStart = time.Now()
	s.mu.Unlock()

	snap, err := s.refresh(ctx, homeOnly)
	if err != nil {
		s.log.Error().Err(err).Msg("refresh failed to produce a snapshot")
		return Snapshot{}, err
	}
	if snap.RefreshedAt.IsZero() {
		snap.RefreshedAt = time.Now()
	}

	s.SetSnapshot(snap)
	if len(snap.Errors) > 0 {
		s.log.Warn().Int("field_errors", len(snap.Errors)).Bool("partial", snap.Partial).Msg("refresh completed with partial failures")
	}
	return snap, nil
}
