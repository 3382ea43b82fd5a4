package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/taskdock/internal/geometry"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/notifier"
	"github.com/bryanchriswhite/taskdock/internal/order"
	"github.com/bryanchriswhite/taskdock/internal/overlay"
	"github.com/bryanchriswhite/taskdock/internal/pins"
	"github.com/bryanchriswhite/taskdock/internal/snapshot"
	"github.com/bryanchriswhite/taskdock/internal/window"
	"github.com/bryanchriswhite/taskdock/internal/window/windowtest"
)

const waitTimeout = 2 * time.Second

var desk = model.ContainerID{Display: 1, Space: 0}

type recorder struct {
	views chan model.View
}

func newRecorder() *recorder { return &recorder{views: make(chan model.View, 256)} }

func (r *recorder) Publish(v model.View) { r.views <- v }

// waitFor reads published views until pred holds.
func (r *recorder) waitFor(t *testing.T, pred func(model.View) bool) model.View {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v := <-r.views:
			if pred(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
			return model.View{}
		}
	}
}

type harness struct {
	fake   *windowtest.Backend
	pins   *pins.Registry
	recon  *order.Reconciler
	rec    *recorder
	events chan notifier.Event
	driver *Driver
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	return newHarnessConfig(t, Config{PruneAfter: 3}, mutate)
}

func newHarnessConfig(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()

	fake := windowtest.New()
	fake.SetDisplays(window.DisplayInfo{
		ID:     1,
		Frame:  model.Rect{Width: 1920, Height: 1080},
		Bounds: model.Rect{Width: 1920, Height: 1080},
		Spaces: []model.SpaceID{0},
	})
	fake.Add(model.Window{ID: 1, AppID: "term", Display: 1, Bounds: model.Rect{Width: 100, Height: 100}})
	fake.Add(model.Window{ID: 2, AppID: "web", Display: 1, Bounds: model.Rect{X: 200, Width: 100, Height: 100}})

	registry, err := pins.NewRegistry(pins.NewYAMLStore(filepath.Join(t.TempDir(), "pins.yaml")))
	require.NoError(t, err)

	h := &harness{
		fake:   fake,
		pins:   registry,
		recon:  order.NewReconciler(),
		rec:    newRecorder(),
		events: make(chan notifier.Event, 16),
	}
	deps := Deps{
		Builder:    snapshot.NewBuilder(fake, registry),
		Reconciler: h.recon,
		Pins:       registry,
		Actions:    window.NewManager(fake),
		Events:     h.events,
		Publisher:  h.rec,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.driver = New(deps, cfg)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.driver.Run(ctx) }()
	t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func withIDs(want ...model.WindowID) func(model.View) bool {
	return func(v model.View) bool {
		cv, ok := v.Container(desk)
		if !ok || len(cv.Windows) != len(want) {
			return false
		}
		for i, id := range cv.IDs() {
			if id != want[i] {
				return false
			}
		}
		return true
	}
}

func TestInitialView(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.pins.PinApp("mail"))
	h.start(t)

	v := h.rec.waitFor(t, withIDs(1, 2))
	require.Equal(t, []model.WindowID{1, 2}, v.Aggregate.IDs())
	require.Equal(t, model.AggregateContainer, v.Aggregate.ID)
	require.Equal(t, []model.AppPin{{AppID: "mail", Windows: []model.WindowID{}, Ghost: true}}, v.PinnedApps)
	require.NotZero(t, v.Generation)
}

func TestMoveIntent(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	ctx := context.Background()
	require.NoError(t, h.driver.Submit(ctx, Move{Container: desk, Order: []model.WindowID{2, 1}}))
	v := h.rec.waitFor(t, withIDs(2, 1))
	require.Equal(t, []model.WindowID{1, 2}, v.Aggregate.IDs(), "aggregate keeps its own order")

	require.NoError(t, h.driver.Submit(ctx, Move{Container: model.AggregateContainer, Order: []model.WindowID{2, 1}}))
	v = h.rec.waitFor(t, func(v model.View) bool {
		ids := v.Aggregate.IDs()
		return len(ids) == 2 && ids[0] == 2
	})
	require.Equal(t, []model.WindowID{2, 1}, h.recon.Order(desk))

	// Enumeration order changes do not override the move.
	h.fake.Reorder(1, 2)
	require.NoError(t, h.driver.Submit(ctx, Refresh{Full: true}))
	h.rec.waitFor(t, withIDs(2, 1))
}

func TestPinIntents(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	ctx := context.Background()
	require.NoError(t, h.driver.Submit(ctx, PinWindow{ID: 2, Op: PinOpPin}))
	v := h.rec.waitFor(t, func(v model.View) bool {
		cv, _ := v.Container(desk)
		return len(cv.Windows) == 2 && cv.Windows[1].Pinned
	})
	require.False(t, v.Aggregate.Windows[0].Pinned)
	require.True(t, h.pins.IsPinned(2))

	require.NoError(t, h.driver.Submit(ctx, PinApp{AppID: "term", Op: PinOpToggle}))
	v = h.rec.waitFor(t, func(v model.View) bool { return len(v.PinnedApps) == 1 })
	require.Equal(t, model.AppPin{AppID: "term", Windows: []model.WindowID{1}}, v.PinnedApps[0])

	require.ErrorIs(t, h.driver.Submit(ctx, PinApp{AppID: "", Op: PinOpPin}), pins.ErrEmptyID)
}

func TestStructuralEventRebuilds(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	h.fake.Add(model.Window{ID: 3, AppID: "term", Display: 1})
	h.fake.Remove(1)
	h.events <- notifier.Event{Class: notifier.Structural, Kind: window.WindowCreated}

	v := h.rec.waitFor(t, withIDs(2, 3))
	require.Equal(t, []model.WindowID{2, 3}, v.Aggregate.IDs())
}

func TestCosmeticEventUpdatesRecent(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	h.events <- notifier.Event{Class: notifier.Cosmetic, Window: 2}
	h.events <- notifier.Event{Class: notifier.Cosmetic, Window: 1}
	h.events <- notifier.Event{Class: notifier.Cosmetic, Window: 2}

	v := h.rec.waitFor(t, func(v model.View) bool { return len(v.Recent) == 2 && v.Recent[0] == 2 })
	require.Equal(t, model.WindowID(2), v.Active)
	require.Equal(t, []model.WindowID{2, 1}, v.Recent)
	require.Equal(t, []model.AppGroup{
		{AppID: "term", Windows: []model.WindowID{1}, Visible: []model.WindowID{1}},
		{AppID: "web", Windows: []model.WindowID{2}, Visible: []model.WindowID{2}},
	}, v.Aggregate.Groups)
}

func TestWindowIntents(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	ctx := context.Background()
	require.NoError(t, h.driver.Submit(ctx, Activate{ID: 1}))
	require.NoError(t, h.driver.Submit(ctx, Minimize{ID: 1}))
	require.NoError(t, h.driver.Submit(ctx, Close{ID: 2}))
	require.Equal(t, 1, h.fake.ElementFor(1).Raised)
	require.Equal(t, 1, h.fake.ElementFor(1).Minimizes)
	require.Equal(t, 1, h.fake.ElementFor(2).ClosedCount)

	require.ErrorIs(t, h.driver.Submit(ctx, Activate{ID: 42}), ErrUnknownWindow)

	h.fake.ElementFor(2).Caps = model.Activatable
	require.ErrorIs(t, h.driver.Submit(ctx, Close{ID: 2}), window.ErrUnsupported)
}

func TestSubmitAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))
	h.stop()

	require.ErrorIs(t, h.driver.Submit(context.Background(), Refresh{}), ErrStopped)
}

func TestEnumerationFailureKeepsView(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	h.fake.FailEnumerate(errors.New("connection reset"))
	require.NoError(t, h.driver.Submit(context.Background(), Refresh{Full: true}))
	require.NoError(t, h.driver.Submit(context.Background(), Move{Container: model.AggregateContainer, Order: []model.WindowID{2, 1}}))

	v := h.rec.waitFor(t, func(v model.View) bool {
		ids := v.Aggregate.IDs()
		return len(ids) == 2 && ids[0] == 2
	})
	require.Len(t, v.Containers, 1)
	require.Equal(t, []model.WindowID{1, 2}, h.recon.Order(desk))
}

func TestGuardRunsEachCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.Move(1, model.Rect{X: 0, Y: 100, Width: 100, Height: 1000})
	h.driver.deps.Guard = geometry.NewGuard(h.fake)
	h.driver.deps.Overlay = overlay.NewManager(overlay.Settings{Enabled: true, Height: 40})
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	require.Eventually(t, func() bool {
		return len(h.fake.ElementFor(1).Sizes()) > 0
	}, waitTimeout, 5*time.Millisecond)
	require.Equal(t, [][2]int{{100, 939}}, h.fake.ElementFor(1).Sizes())
	require.Empty(t, h.fake.ElementFor(2).Sizes())
}

// gatedBuilder blocks every build until released.
type gatedBuilder struct {
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (g *gatedBuilder) build() *model.Snapshot {
	<-g.gate
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	snap := model.NewSnapshot()
	snap.Full = true
	snap.AddDisplay(model.Display{ID: 1, Spaces: []model.SpaceID{0}})
	snap.AddWindow(model.Window{ID: 1, Display: 1})
	return snap
}

func (g *gatedBuilder) BuildFull() *model.Snapshot { return g.build() }
func (g *gatedBuilder) BuildIncremental(*model.Snapshot) *model.Snapshot { return g.build() }

func TestBuildRequestsSupersedeInFlightBuild(t *testing.T) {
	gb := &gatedBuilder{gate: make(chan struct{})}
	h := newHarness(t, func(d *Deps) { d.Builder = gb })
	h.start(t)

	// The initial build is blocked; two more requests collapse into one.
	require.NoError(t, h.driver.Submit(context.Background(), Refresh{Full: true}))
	require.NoError(t, h.driver.Submit(context.Background(), Refresh{}))

	gb.gate <- struct{}{}
	gb.gate <- struct{}{}

	v := h.rec.waitFor(t, func(model.View) bool { return true })
	require.Equal(t, uint64(2), v.Generation)

	select {
	case extra := <-h.rec.views:
		t.Fatalf("unexpected extra view generation %d", extra.Generation)
	case <-time.After(50 * time.Millisecond):
	}
	gb.mu.Lock()
	require.Equal(t, 2, gb.calls)
	gb.mu.Unlock()
}

func TestStaleResultDiscarded(t *testing.T) {
	rec := newRecorder()
	d := New(Deps{Publisher: rec}, Config{})
	d.applied = 5
	d.inFlight = true

	snap := model.NewSnapshot()
	snap.Full = true
	d.handleResult(buildResult{gen: 4, full: true, snap: snap})

	require.False(t, d.inFlight)
	require.Nil(t, d.snap)
	require.Empty(t, rec.views)
}

type panicPublisher struct{}

func (panicPublisher) Publish(model.View) { panic("subscriber exploded") }

func TestPanickingCycleRecovered(t *testing.T) {
	d := New(Deps{Publisher: panicPublisher{}}, Config{})

	snap := model.NewSnapshot()
	snap.Full = true
	snap.AddDisplay(model.Display{ID: 1, Spaces: []model.SpaceID{0}})
	snap.AddWindow(model.Window{ID: 1, Display: 1})

	require.NotPanics(t, func() { d.handleResult(buildResult{gen: 1, full: true, snap: snap}) })
	require.Equal(t, uint64(1), d.applied)
}

func TestPruneCountsOnlyFullRebuilds(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))

	ctx := context.Background()
	gen := uint64(1)
	refresh := func(full bool) {
		t.Helper()
		require.NoError(t, h.driver.Submit(ctx, Refresh{Full: full}))
		gen++
		want := gen
		h.rec.waitFor(t, func(v model.View) bool { return v.Generation == want })
	}

	h.fake.Remove(1)
	for i := 0; i < 5; i++ {
		refresh(false)
	}
	require.Equal(t, []model.WindowID{1, 2}, h.recon.Order(desk))

	refresh(true)
	refresh(false)
	refresh(true)
	require.Equal(t, []model.WindowID{1, 2}, h.recon.Order(desk))

	refresh(true)
	require.Equal(t, []model.WindowID{2}, h.recon.Order(desk))
}

// countingBuilder counts full builds.
type countingBuilder struct {
	Builder
	full atomic.Int32
}

func (c *countingBuilder) BuildFull() *model.Snapshot {
	c.full.Add(1)
	return c.Builder.BuildFull()
}

func TestDebounceCoalescesBurst(t *testing.T) {
	var cb *countingBuilder
	h := newHarnessConfig(t, Config{PruneAfter: 3, Debounce: 200 * time.Millisecond}, func(d *Deps) {
		cb = &countingBuilder{Builder: d.Builder}
		d.Builder = cb
	})
	h.start(t)
	h.rec.waitFor(t, withIDs(1, 2))
	require.Equal(t, int32(1), cb.full.Load())

	h.fake.Add(model.Window{ID: 3, AppID: "term", Display: 1})
	for i := 0; i < 5; i++ {
		h.events <- notifier.Event{Class: notifier.Structural, Kind: window.WindowCreated}
		time.Sleep(20 * time.Millisecond)
	}
	require.Empty(t, h.rec.views, "rebuild must wait for the burst to go quiet")

	h.rec.waitFor(t, withIDs(1, 2, 3))
	require.Equal(t, int32(2), cb.full.Load())
}

// staticBuilder returns the same one-window snapshot on every build.
type staticBuilder struct{}

func (staticBuilder) BuildFull() *model.Snapshot {
	snap := model.NewSnapshot()
	snap.Full = true
	snap.AddDisplay(model.Display{ID: 1, Spaces: []model.SpaceID{0}})
	snap.AddWindow(model.Window{ID: 1, Display: 1})
	return snap
}

func (b staticBuilder) BuildIncremental(*model.Snapshot) *model.Snapshot { return b.BuildFull() }

func TestSustainedChurnStillPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecorder()
	d := New(Deps{Builder: staticBuilder{}, Publisher: rec}, Config{})
	d.ctx = ctx
	d.gen = 1

	for i := 0; i < maxSuperseded; i++ {
		d.inFlight, d.dirty = true, true
		d.handleResult(buildResult{gen: d.gen, full: true, snap: staticBuilder{}.BuildFull()})
		require.True(t, d.inFlight, "superseding build started")
	}
	require.Empty(t, rec.views)

	applied := d.gen
	d.inFlight, d.dirty = true, true
	d.handleResult(buildResult{gen: applied, full: true, snap: staticBuilder{}.BuildFull()})

	require.Len(t, rec.views, 1)
	require.Equal(t, applied, (<-rec.views).Generation)
	require.Equal(t, applied, d.applied)
	require.True(t, d.inFlight, "pending build still runs after applying")
	require.Equal(t, 0, d.superseded)
}
