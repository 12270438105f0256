package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markin/internal/core"
	"markin/internal/stats"
)

// fakeFetcher returns a canned result, optionally after release is closed.
type fakeFetcher struct {
	snap    core.StatsSnapshot
	err     error
	release chan struct{}
	calls   int32
	// ignoreCtx makes the fetch resolve even after cancellation, the way a
	// late network response would.
	ignoreCtx bool
}

func (f *fakeFetcher) FetchStats(ctx context.Context) (core.StatsSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		if f.ignoreCtx {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				return core.StatsSnapshot{}, &stats.FetchError{Kind: stats.KindTransport, Err: ctx.Err()}
			}
		}
	}
	return f.snap, f.err
}

func fullSnapshot() core.StatsSnapshot {
	return core.StatsSnapshot{
		Counts:        &core.Counts{Students: core.Int64(1520), Colleges: core.Int64(12), NGOs: core.Int64(7), Events: core.Int64(44)},
		MonthlyData:   []float64{5, 0, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		TopCategories: []core.CategoryShare{{Name: "Education", Percentage: 40}},
		RecentEvents:  []core.RecentEvent{{Title: "Blood drive", RegisteredStudents: 3}},
	}
}

func waitState(t *testing.T, v *View) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := v.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestView_StartsLoading(t *testing.T) {
	f := &fakeFetcher{snap: fullSnapshot()}
	v := NewView(f)

	st := v.State()
	assert.Equal(t, PhaseLoading, st.Phase)
	assert.False(t, st.Phase.Terminal())
	assert.Equal(t, LoadingPlaceholder, st.TileValue(123))
	assert.Zero(t, atomic.LoadInt32(&f.calls), "no fetch before mount")
}

func TestView_Success(t *testing.T) {
	f := &fakeFetcher{snap: fullSnapshot()}
	v := NewView(f)
	v.Mount(context.Background())

	st := waitState(t, v)
	assert.Equal(t, PhaseSuccess, st.Phase)
	assert.Equal(t, core.CountTotals{Students: 1520, Colleges: 12, NGOs: 7, Events: 44}, st.Model.Counts)
	assert.Equal(t, int64(10), st.Model.MaxMonthly)
	assert.Empty(t, st.Message())
	assert.Equal(t, "1,520", st.TileValue(st.Model.Counts.Students))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestView_ServerReportedFailure(t *testing.T) {
	f := &fakeFetcher{err: &stats.FetchError{Kind: stats.KindServerReported, Err: errors.New("success false")}}
	v := NewView(f)
	v.Mount(context.Background())

	st := waitState(t, v)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, ReasonStatsUnavailable, st.Reason)
	assert.Equal(t, "Failed to load stats.", st.Message())
	assert.Equal(t, core.CountTotals{}, st.Model.Counts)
	assert.Equal(t, "Failed to load stats.", st.Model.Failure)
	for _, tile := range st.Tiles() {
		assert.Equal(t, ErrorPlaceholder, tile.Value)
	}
}

func TestView_TransportFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
	v := NewView(f)
	v.Mount(context.Background())

	st := waitState(t, v)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, ReasonServerUnreachable, st.Reason)
	assert.Equal(t, "Could not reach server.", st.Message())
	assert.Len(t, st.Model.Months, core.MonthsPerYear)
}

func TestView_MountIsIdempotent(t *testing.T) {
	f := &fakeFetcher{snap: fullSnapshot()}
	v := NewView(f)
	v.Mount(context.Background())
	v.Mount(context.Background())
	waitState(t, v)
	v.Mount(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestView_TerminalStateNeverReturnsToLoading(t *testing.T) {
	v := NewView(&fakeFetcher{snap: fullSnapshot()})
	v.Mount(context.Background())
	waitState(t, v)

	v.Unmount()
	v.Mount(context.Background())

	assert.Equal(t, PhaseSuccess, v.State().Phase)
}

func TestView_DiscardOnUnmount(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{snap: fullSnapshot(), release: release, ignoreCtx: true}

	var transitions int32
	v := NewView(f, WithObserver(func(State) { atomic.AddInt32(&transitions, 1) }))
	v.Mount(context.Background())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)
	v.Unmount()
	close(release)

	// Give the late result time to arrive and be dropped.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, PhaseLoading, v.State().Phase)
	assert.Zero(t, atomic.LoadInt32(&transitions))
	select {
	case <-v.Done():
		t.Fatal("done must not close after unmount")
	default:
	}

	_, err := v.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnmounted)
}

func TestView_UnmountCancelsFetch(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	v := NewView(f)
	v.Mount(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)

	v.Unmount()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, PhaseLoading, v.State().Phase)
}

func TestView_UnmountBeforeMount(t *testing.T) {
	f := &fakeFetcher{snap: fullSnapshot()}
	v := NewView(f)
	v.Unmount()
	v.Mount(context.Background())

	assert.Zero(t, atomic.LoadInt32(&f.calls))
	_, err := v.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnmounted)
}

func TestView_ObserverSeesTerminalState(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Phase
	)
	v := NewView(&fakeFetcher{snap: fullSnapshot()}, WithObserver(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Phase)
	}))
	v.Mount(context.Background())
	waitState(t, v)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []Phase{PhaseSuccess}, seen)
}

func TestView_WaitHonoursContext(t *testing.T) {
	v := NewView(&fakeFetcher{release: make(chan struct{})})
	v.Mount(context.Background())
	defer v.Unmount()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := v.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, PhaseLoading, st.Phase)
}

func TestLoad(t *testing.T) {
	st, err := Load(context.Background(), &fakeFetcher{snap: core.StatsSnapshot{}})
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, st.Phase)
	// Counts missing entirely render as "0", not a placeholder.
	for _, tile := range st.Tiles() {
		assert.Equal(t, "0", tile.Value)
	}
}

func TestState_JSON(t *testing.T) {
	st := errorState(errors.New("boom"))
	raw, err := json.Marshal(st)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "error", got["phase"])
	assert.Equal(t, "could not reach server", got["reason"])
	assert.Equal(t, "Could not reach server.", got["message"])
	assert.Len(t, got["tiles"], 4)
}

func TestSkeletonBars(t *testing.T) {
	vals := []float64{0, 0.5, 0.999}
	i := 0
	bars := SkeletonBars(func() float64 {
		v := vals[i%len(vals)]
		i++
		return v
	})
	require.Len(t, bars, core.MonthsPerYear)
	assert.Equal(t, []int{20, 50, 79}, bars[:3])

	for _, h := range SkeletonBars(nil) {
		assert.GreaterOrEqual(t, h, 20)
		assert.Less(t, h, 80)
	}
}
