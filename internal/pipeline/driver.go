// Package pipeline drives the snapshot -> reconcile -> publish cycle on a
// single goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/taskdock/internal/geometry"
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/notifier"
	"github.com/bryanchriswhite/taskdock/internal/order"
	"github.com/bryanchriswhite/taskdock/internal/overlay"
	"github.com/bryanchriswhite/taskdock/internal/pins"
)

var (
	// ErrStopped is returned by Submit once Run has returned.
	ErrStopped = errors.New("pipeline stopped")
	// ErrUnknownWindow is returned for intents naming a window that is not
	// in the current snapshot.
	ErrUnknownWindow = errors.New("unknown window")
)

// Builder produces snapshots.
type Builder interface {
	BuildFull() *model.Snapshot
	BuildIncremental(prev *model.Snapshot) *model.Snapshot
}

// Actions executes window intents.
type Actions interface {
	Activate(w model.Window) error
	Close(w model.Window) error
	Minimize(w model.Window) error
}

// Publisher receives every view the pipeline produces.
type Publisher interface {
	Publish(v model.View)
}

// Config tunes the driver.
type Config struct {
	// RefreshInterval is the incremental refresh cadence; zero disables it.
	RefreshInterval time.Duration
	// Debounce delays full rebuilds until structural events stop arriving
	// for this long; zero rebuilds on every event.
	Debounce time.Duration
	// PruneAfter is the number of consecutive full rebuilds an id may be
	// missing from a container before its order slot is dropped.
	PruneAfter int
	// RecentLimit caps the most-recently-active list.
	RecentLimit int
}

// DefaultConfig returns the default driver settings.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 2 * time.Second,
		PruneAfter:      3,
		RecentLimit:     10,
	}
}

// Deps are the components the driver coordinates. Overlay, Guard and
// Actions may be nil.
type Deps struct {
	Builder    Builder
	Reconciler *order.Reconciler
	Pins       *pins.Registry
	Guard      *geometry.Guard
	Overlay    *overlay.Manager
	Actions    Actions
	Events     <-chan notifier.Event
	Publisher  Publisher
}

type request struct {
	intent Intent
	reply  chan error
}

// maxSuperseded bounds how many finished builds in a row may be discarded
// for a newer request before one is applied anyway.
const maxSuperseded = 3

type buildResult struct {
	gen  uint64
	full bool
	snap *model.Snapshot
}

// Driver owns the reconciler, the last snapshot and the recent list. All of
// them are only touched from the Run goroutine.
type Driver struct {
	deps Deps
	cfg  Config

	intents chan request
	results chan buildResult
	stopped chan struct{}

	ctx         context.Context
	snap        *model.Snapshot
	active      model.WindowID
	recent      []model.WindowID
	gen         uint64
	applied     uint64
	inFlight    bool
	dirty       bool
	pendingFull bool
	superseded  int
}

// New creates a driver.
func New(deps Deps, cfg Config) *Driver {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultConfig().RecentLimit
	}
	if deps.Reconciler == nil {
		deps.Reconciler = order.NewReconciler()
	}
	return &Driver{
		deps:    deps,
		cfg:     cfg,
		intents: make(chan request),
		results: make(chan buildResult),
		stopped: make(chan struct{}),
	}
}

// Submit hands an intent to the pipeline and waits for it to be applied.
func (d *Driver) Submit(ctx context.Context, in Intent) error {
	req := request{intent: in, reply: make(chan error, 1)}

	select {
	case d.intents <- req:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts with a full build and processes events, timers, build results
// and intents until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.stopped)
	log := logger.WithComponent("pipeline")

	d.ctx = ctx
	d.requestBuild(true)

	var tick <-chan time.Time
	if d.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(d.cfg.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	log.Info().
		Dur("refresh_interval", d.cfg.RefreshInterval).
		Dur("debounce", d.cfg.Debounce).
		Int("prune_after", d.cfg.PruneAfter).
		Msg("Pipeline started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Pipeline stopped")
			return nil

		case ev := <-d.deps.Events:
			switch ev.Class {
			case notifier.Structural:
				log.Debug().Stringer("kind", ev.Kind).Msg("Structural change")
				if d.cfg.Debounce <= 0 {
					d.requestBuild(true)
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(d.cfg.Debounce)
				} else {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(d.cfg.Debounce)
				}
				debounceC = debounce.C
			case notifier.Cosmetic:
				d.focusChanged(ev.Window)
			}

		case <-debounceC:
			debounceC = nil
			d.requestBuild(true)

		case <-tick:
			d.requestBuild(false)

		case res := <-d.results:
			d.handleResult(res)

		case req := <-d.intents:
			req.reply <- d.handleIntent(req.intent)
		}
	}
}

// requestBuild starts a build, or marks the pipeline dirty when one is
// already running so that its result is discarded and a single new build
// replaces it. After maxSuperseded discards in a row the finished result is
// applied before the replacement starts.
func (d *Driver) requestBuild(full bool) {
	if d.inFlight {
		d.dirty = true
		d.pendingFull = d.pendingFull || full
		return
	}
	d.startBuild(full)
}

func (d *Driver) startBuild(full bool) {
	d.gen++
	gen := d.gen
	prev := d.snap
	if prev == nil {
		full = true
	}
	d.inFlight = true

	ctx := d.ctx
	go func() {
		res := buildResult{gen: gen, full: full}
		func() {
			defer func() {
				if err := recover(); err != nil {
					logger.WithComponent("pipeline").Error().
						Interface("panic", err).
						Uint64("generation", gen).
						Msg("Snapshot build panicked")
					res.snap = nil
				}
			}()
			if full {
				res.snap = d.deps.Builder.BuildFull()
			} else {
				res.snap = d.deps.Builder.BuildIncremental(prev)
			}
		}()
		if res.snap != nil {
			res.snap.Generation = gen
		}

		select {
		case d.results <- res:
		case <-ctx.Done():
		}
	}()
}

func (d *Driver) handleResult(res buildResult) {
	log := logger.WithComponent("pipeline")
	d.inFlight = false

	if d.dirty {
		full := d.pendingFull || res.full
		d.dirty, d.pendingFull = false, false
		if d.superseded < maxSuperseded {
			d.superseded++
			log.Debug().Uint64("generation", res.gen).Msg("Discarding superseded build")
			d.startBuild(full)
			return
		}
		log.Debug().Uint64("generation", res.gen).Msg("Applying superseded build after repeated discards")
		defer d.startBuild(full)
	}
	d.superseded = 0

	if res.gen <= d.applied {
		log.Debug().
			Uint64("generation", res.gen).
			Uint64("applied", d.applied).
			Msg("Discarding stale build")
		return
	}
	if res.snap == nil {
		return
	}
	if res.full && !res.snap.Full {
		// Enumeration failed; keep the last view until the next cycle.
		log.Warn().Uint64("generation", res.gen).Msg("Full build returned no enumeration, keeping previous view")
		return
	}

	res.snap.Generation = res.gen
	d.cycle(res.snap)
}

// cycle applies a snapshot: reconcile, prune, publish, then guard geometry.
func (d *Driver) cycle(snap *model.Snapshot) {
	log := logger.WithComponent("pipeline")
	defer func() {
		if err := recover(); err != nil {
			log.Error().Interface("panic", err).Uint64("generation", snap.Generation).Msg("Pipeline cycle panicked")
		}
	}()

	d.applied = snap.Generation
	d.snap = snap
	recon := d.deps.Reconciler

	present := make(map[model.ContainerID]bool)
	for _, c := range snap.Containers() {
		present[c] = true
		ids := snap.WindowsIn(c)
		recon.Reconcile(c, ids)
		if snap.Full {
			recon.Prune(c, ids, d.cfg.PruneAfter)
		}
	}
	if snap.Full {
		for _, c := range recon.Containers() {
			if !present[c] {
				recon.Prune(c, nil, d.cfg.PruneAfter)
			}
		}
		d.recent = filterLive(d.recent, snap)
	}

	recon.ReconcileAggregate(d.union())

	view := d.buildView()
	d.publish(view)

	log.Debug().
		Uint64("generation", snap.Generation).
		Bool("full", snap.Full).
		Int("windows", snap.Len()).
		Int("containers", len(view.Containers)).
		Msg("Cycle complete")

	d.guard(view)
}

func (d *Driver) guard(view model.View) {
	if d.deps.Guard == nil || d.deps.Overlay == nil {
		return
	}
	rect, ok := d.deps.Overlay.Bounds(d.snap)
	if !ok {
		return
	}
	outcomes := d.deps.Guard.Apply(view.Aggregate.Windows, rect)
	resized := 0
	for _, o := range outcomes {
		if o == geometry.OutcomeResized {
			resized++
		}
	}
	if resized > 0 {
		logger.WithComponent("pipeline").Debug().Int("resized", resized).Msg("Cleared windows from overlay")
	}
}

func (d *Driver) focusChanged(id model.WindowID) {
	d.active = id
	if id != 0 {
		next := make([]model.WindowID, 0, len(d.recent)+1)
		next = append(next, id)
		for _, r := range d.recent {
			if r != id {
				next = append(next, r)
			}
		}
		if len(next) > d.cfg.RecentLimit {
			next = next[:d.cfg.RecentLimit]
		}
		d.recent = next
	}
	if d.snap != nil {
		d.publish(d.buildView())
	}
}

func (d *Driver) handleIntent(in Intent) error {
	log := logger.WithComponent("pipeline")

	switch in := in.(type) {
	case Move:
		if in.Container.IsAggregate() {
			d.deps.Reconciler.MoveAggregate(in.Order)
		} else {
			d.deps.Reconciler.Move(in.Container, in.Order)
		}
		log.Info().Stringer("container", in.Container).Int("size", len(in.Order)).Msg("Order moved")
		d.republish()
		d.requestBuild(false)
		return nil

	case PinWindow:
		if err := d.pinWindow(in); err != nil {
			return err
		}
		d.republish()
		return nil

	case PinApp:
		if err := d.pinApp(in); err != nil {
			return err
		}
		d.republish()
		return nil

	case Activate:
		return d.act(in.ID, "activate", func(w model.Window) error { return d.deps.Actions.Activate(w) })
	case Close:
		return d.act(in.ID, "close", func(w model.Window) error { return d.deps.Actions.Close(w) })
	case Minimize:
		return d.act(in.ID, "minimize", func(w model.Window) error { return d.deps.Actions.Minimize(w) })

	case Refresh:
		d.requestBuild(in.Full)
		return nil
	}
	return fmt.Errorf("unsupported intent %T", in)
}

func (d *Driver) pinWindow(in PinWindow) error {
	if d.deps.Pins == nil {
		return errors.New("pins not configured")
	}
	switch in.Op {
	case PinOpPin:
		return d.deps.Pins.Pin(in.ID)
	case PinOpUnpin:
		return d.deps.Pins.Unpin(in.ID)
	default:
		_, err := d.deps.Pins.TogglePin(in.ID)
		return err
	}
}

func (d *Driver) pinApp(in PinApp) error {
	if d.deps.Pins == nil {
		return errors.New("pins not configured")
	}
	switch in.Op {
	case PinOpPin:
		return d.deps.Pins.PinApp(in.AppID)
	case PinOpUnpin:
		return d.deps.Pins.UnpinApp(in.AppID)
	default:
		_, err := d.deps.Pins.ToggleApp(in.AppID)
		return err
	}
}

func (d *Driver) act(id model.WindowID, action string, fn func(model.Window) error) error {
	if d.deps.Actions == nil {
		return fmt.Errorf("%s: no window actions configured", action)
	}
	if d.snap == nil {
		return fmt.Errorf("%s window %d: %w", action, id, ErrUnknownWindow)
	}
	w, ok := d.snap.Windows[id]
	if !ok {
		return fmt.Errorf("%s window %d: %w", action, id, ErrUnknownWindow)
	}
	return fn(w)
}

func (d *Driver) republish() {
	if d.snap != nil {
		d.publish(d.buildView())
	}
}

func (d *Driver) publish(v model.View) {
	if d.deps.Publisher != nil {
		d.deps.Publisher.Publish(v)
	}
}

func filterLive(ids []model.WindowID, snap *model.Snapshot) []model.WindowID {
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := snap.Windows[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
