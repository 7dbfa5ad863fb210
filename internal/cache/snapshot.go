package cache

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/creditmeter/internal/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Refresh outcomes passed to SnapshotOptions.OnRefresh.
const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
)

// Loader returns the complete keyed set a Snapshot serves.
type Loader[V any] func(ctx context.Context) (map[string]V, error)

type SnapshotOptions struct {
	Name      string
	TTL       time.Duration
	Clock     clock.Clock
	Log       *zap.Logger
	OnRefresh func(ctx context.Context, outcome string)
}

// Info describes the current snapshot for operational tooling.
type Info struct {
	Size         int       `json:"size"`
	LastUpdate   time.Time `json:"lastUpdate"`
	IsStale      bool      `json:"isStale"`
	IsRefreshing bool      `json:"isRefreshing"`
}

type snapshotState[V any] struct {
	entries  map[string]V
	loadedAt time.Time
}

// Snapshot is a read-through keyed cache that is replaced wholesale on every
// reload. Readers see either the previous or the next complete map.
type Snapshot[V any] struct {
	name      string
	ttl       time.Duration
	clock     clock.Clock
	log       *zap.Logger
	load      Loader[V]
	onRefresh func(ctx context.Context, outcome string)

	state      atomic.Pointer[snapshotState[V]]
	refreshing atomic.Bool
	group      singleflight.Group

	// mu orders invalidations against the swap at the end of a reload.
	mu         sync.Mutex
	generation uint64
}

func NewSnapshot[V any](load Loader[V], opts SnapshotOptions) *Snapshot[V] {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystemClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	return &Snapshot[V]{
		name:      opts.Name,
		ttl:       opts.TTL,
		clock:     opts.Clock,
		log:       opts.Log.With(zap.String("cache", opts.Name)),
		load:      load,
		onRefresh: opts.OnRefresh,
	}
}

// Get returns the entry for key, reloading first when the snapshot has expired.
func (s *Snapshot[V]) Get(ctx context.Context, key string) (V, bool) {
	s.ensureFresh(ctx)
	var zero V
	st := s.state.Load()
	if st == nil {
		return zero, false
	}
	v, ok := st.entries[key]
	return v, ok
}

// All returns a copy of every entry, reloading first when expired.
func (s *Snapshot[V]) All(ctx context.Context) map[string]V {
	s.ensureFresh(ctx)
	st := s.state.Load()
	if st == nil {
		return map[string]V{}
	}
	return maps.Clone(st.entries)
}

// Loaded reports whether any reload has ever succeeded.
func (s *Snapshot[V]) Loaded() bool {
	return s.state.Load() != nil
}

// Refresh reloads immediately. The previous snapshot is kept on failure.
func (s *Snapshot[V]) Refresh(ctx context.Context) error {
	s.Invalidate()
	return s.reload(ctx)
}

// Invalidate marks the snapshot expired so the next read reloads. A reload
// already in flight will publish its result as expired.
func (s *Snapshot[V]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if st := s.state.Load(); st != nil {
		s.state.Store(&snapshotState[V]{entries: st.entries})
	}
}

func (s *Snapshot[V]) Info() Info {
	info := Info{IsRefreshing: s.refreshing.Load()}
	st := s.state.Load()
	info.IsStale = s.expired(st)
	if st != nil {
		info.Size = len(st.entries)
		info.LastUpdate = st.loadedAt
	}
	return info
}

func (s *Snapshot[V]) expired(st *snapshotState[V]) bool {
	if st == nil || st.loadedAt.IsZero() {
		return true
	}
	return s.clock.Now().Sub(st.loadedAt) >= s.ttl
}

func (s *Snapshot[V]) ensureFresh(ctx context.Context) {
	st := s.state.Load()
	if !s.expired(st) {
		return
	}
	// A loaded snapshot is served stale while someone else reloads it.
	// A cold one has nothing to serve, so the caller joins the load.
	if st != nil && s.refreshing.Load() {
		return
	}
	_ = s.reload(ctx)
}

func (s *Snapshot[V]) reload(ctx context.Context) error {
	ch := s.group.DoChan("reload", func() (interface{}, error) {
		s.refreshing.Store(true)
		defer s.refreshing.Store(false)

		s.mu.Lock()
		gen := s.generation
		s.mu.Unlock()

		loadCtx := context.WithoutCancel(ctx)
		start := s.clock.Now()
		entries, err := s.load(loadCtx)
		if err != nil {
			s.log.Warn("reload failed, keeping previous snapshot", zap.Error(err))
			s.report(loadCtx, RefreshFailed)
			return nil, err
		}
		if entries == nil {
			entries = map[string]V{}
		}

		s.mu.Lock()
		loadedAt := s.clock.Now()
		if gen != s.generation {
			loadedAt = time.Time{}
		}
		s.state.Store(&snapshotState[V]{entries: entries, loadedAt: loadedAt})
		s.mu.Unlock()

		s.log.Debug("snapshot reloaded",
			zap.Int("size", len(entries)),
			zap.Duration("took", s.clock.Now().Sub(start)),
		)
		s.report(loadCtx, RefreshOK)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Snapshot[V]) report(ctx context.Context, outcome string) {
	if s.onRefresh != nil {
		s.onRefresh(ctx, outcome)
	}
}
