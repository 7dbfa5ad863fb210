package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	mu      sync.Mutex
	calls   int
	entries map[string]int
	err     error
	gate    chan struct{}
}

func (l *stubLoader) load(ctx context.Context) (map[string]int, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gate
	entries := make(map[string]int, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	err := l.err
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *stubLoader) set(key string, v int) {
	l.mu.Lock()
	l.entries[key] = v
	l.mu.Unlock()
}

func (l *stubLoader) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *stubLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

var snapshotEpoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestSnapshot(l *stubLoader, clk clock.Clock) *Snapshot[int] {
	return NewSnapshot[int](l.load, SnapshotOptions{Name: "test", TTL: 5 * time.Minute, Clock: clk})
}

func TestSnapshotLoadsOnFirstRead(t *testing.T) {
	l := &stubLoader{entries: map[string]int{"a": 1, "b": 2}}
	s := newTestSnapshot(l, clock.NewFakeClock(snapshotEpoch))

	v, ok := s.Get(context.Background(), "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.Get(context.Background(), "b")
	require.True(t, ok)
	assert.Equal(t, 1, l.callCount())

	info := s.Info()
	assert.Equal(t, 2, info.Size)
	assert.False(t, info.IsStale)
	assert.Equal(t, snapshotEpoch, info.LastUpdate)
}

func TestSnapshotReloadsAfterTTL(t *testing.T) {
	clk := clock.NewFakeClock(snapshotEpoch)
	l := &stubLoader{entries: map[string]int{"a": 1}}
	s := newTestSnapshot(l, clk)

	_, _ = s.Get(context.Background(), "a")
	l.set("a", 2)

	clk.Advance(4 * time.Minute)
	v, _ := s.Get(context.Background(), "a")
	assert.Equal(t, 1, v, "within TTL the cached value is served")

	clk.Advance(time.Minute)
	v, _ = s.Get(context.Background(), "a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, l.callCount())
}

func TestSnapshotInvalidateForcesReload(t *testing.T) {
	l := &stubLoader{entries: map[string]int{"a": 1}}
	s := newTestSnapshot(l, clock.NewFakeClock(snapshotEpoch))

	_, _ = s.Get(context.Background(), "a")
	l.set("a", 7)
	s.Invalidate()

	assert.True(t, s.Info().IsStale)
	assert.True(t, s.Info().LastUpdate.IsZero())

	v, _ := s.Get(context.Background(), "a")
	assert.Equal(t, 7, v)
}

func TestSnapshotKeepsStaleOnFailure(t *testing.T) {
	clk := clock.NewFakeClock(snapshotEpoch)
	l := &stubLoader{entries: map[string]int{"a": 1}}
	s := newTestSnapshot(l, clk)

	_, _ = s.Get(context.Background(), "a")
	l.fail(errors.New("store down"))
	clk.Advance(10 * time.Minute)

	v, ok := s.Get(context.Background(), "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, s.Info().IsStale)

	err := s.Refresh(context.Background())
	require.Error(t, err)
	v, _ = s.Get(context.Background(), "a")
	assert.Equal(t, 1, v)
}

func TestSnapshotColdCallersShareOneLoad(t *testing.T) {
	l := &stubLoader{entries: map[string]int{"a": 1}, gate: make(chan struct{})}
	s := newTestSnapshot(l, clock.NewFakeClock(snapshotEpoch))

	const readers = 16
	var (
		wg    sync.WaitGroup
		found atomic.Int32
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Get(context.Background(), "a"); ok {
				found.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return s.Info().IsRefreshing }, time.Second, time.Millisecond)
	// let the remaining readers reach the in-flight load
	time.Sleep(20 * time.Millisecond)
	close(l.gate)
	wg.Wait()

	assert.Equal(t, int32(readers), found.Load(), "cold readers must wait for the load instead of seeing an empty map")
	assert.Equal(t, 1, l.callCount())
}

func TestSnapshotInvalidateDuringReloadLeavesItStale(t *testing.T) {
	l := &stubLoader{entries: map[string]int{"a": 1}, gate: make(chan struct{})}
	s := newTestSnapshot(l, clock.NewFakeClock(snapshotEpoch))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Refresh(context.Background())
	}()
	require.Eventually(t, func() bool { return s.Info().IsRefreshing }, time.Second, time.Millisecond)

	s.Invalidate()
	close(l.gate)
	<-done

	info := s.Info()
	assert.Equal(t, 1, info.Size)
	assert.True(t, info.IsStale)

	l.mu.Lock()
	l.gate = nil
	l.mu.Unlock()
	_, _ = s.Get(context.Background(), "a")
	assert.Equal(t, 2, l.callCount())
	assert.False(t, s.Info().IsStale)
}

func TestSnapshotReloadSurvivesCancelledCaller(t *testing.T) {
	l := &stubLoader{entries: map[string]int{"a": 1}, gate: make(chan struct{})}
	s := newTestSnapshot(l, clock.NewFakeClock(snapshotEpoch))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Refresh(ctx) }()

	require.Eventually(t, func() bool { return s.Info().IsRefreshing }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(l.gate)
	require.Eventually(t, func() bool { return s.Loaded() && !s.Info().IsRefreshing }, time.Second, time.Millisecond)
	v, ok := s.Get(context.Background(), "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestSnapshotReportsOutcome(t *testing.T) {
	var outcomes []string
	l := &stubLoader{entries: map[string]int{}}
	s := NewSnapshot[int](l.load, SnapshotOptions{
		Name:  "test",
		Clock: clock.NewFakeClock(snapshotEpoch),
		OnRefresh: func(_ context.Context, outcome string) {
			outcomes = append(outcomes, outcome)
		},
	})

	require.NoError(t, s.Refresh(context.Background()))
	l.fail(errors.New("boom"))
	require.Error(t, s.Refresh(context.Background()))

	assert.Equal(t, []string{RefreshOK, RefreshFailed}, outcomes)
}
