// Package notifier turns OS window-system signals and a focus poll into
// typed Structural and Cosmetic events.
package notifier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

// Class says how much of the pipeline an event invalidates.
type Class int

const (
	// Structural events mean windows or spaces came or went; they require a
	// full rebuild.
	Structural Class = iota
	// Cosmetic events only change the active window.
	Cosmetic
)

func (c Class) String() string {
	if c == Structural {
		return "structural"
	}
	return "cosmetic"
}

// Event is one classified change. Kind is set for Structural events,
// Window for Cosmetic ones.
type Event struct {
	Class  Class
	Kind   window.EventKind
	Window model.WindowID
}

// State of the notifier.
type State int

const (
	Idle State = iota
	Observing
)

func (s State) String() string {
	if s == Observing {
		return "observing"
	}
	return "idle"
}

// Options configures a Notifier.
type Options struct {
	// FocusPollInterval is the frontmost-window poll period; zero disables
	// focus polling.
	FocusPollInterval time.Duration
	// Buffer is the event channel capacity.
	Buffer int
}

// DefaultOptions returns a 500ms focus poll and a 64 event buffer.
func DefaultOptions() Options {
	return Options{FocusPollInterval: 500 * time.Millisecond, Buffer: 64}
}

// Notifier registers OS observers and a focus ticker while Observing.
type Notifier struct {
	events window.Events
	focus  window.Focus
	opts   Options
	out    chan Event

	mu    sync.Mutex
	state State
	regs  []window.Registration
	stop  chan struct{}
	done  chan struct{}

	focusMu   sync.Mutex
	lastFocus model.WindowID

	dropped      atomic.Uint64
	overflow     atomic.Bool
	overflowKind atomic.Int32
}

// New creates an idle notifier.
func New(events window.Events, focus window.Focus, opts Options) *Notifier {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultOptions().Buffer
	}
	return &Notifier{
		events: events,
		focus:  focus,
		opts:   opts,
		out:    make(chan Event, opts.Buffer),
	}
}

// Events is the stream of classified changes. It is never closed.
func (n *Notifier) Events() <-chan Event {
	return n.out
}

// State returns the current state.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Dropped returns how many events were discarded because the channel was full.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Start registers every observer and starts the focus ticker. Starting an
// observing notifier does nothing. If any registration fails the ones
// already made are cancelled and the notifier stays Idle.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == Observing {
		return nil
	}
	log := logger.WithComponent("notifier")

	regs := make([]window.Registration, 0, len(window.AllEventKinds))
	for _, kind := range window.AllEventKinds {
		reg, err := n.events.Observe(kind, n.onOSEvent)
		if err != nil {
			for _, r := range regs {
				r.Cancel()
			}
			log.Error().Err(err).Stringer("kind", kind).Msg("Failed to register observer")
			return fmt.Errorf("register %s observer: %w", kind, err)
		}
		regs = append(regs, reg)
	}
	n.regs = regs

	if n.opts.FocusPollInterval > 0 && n.focus != nil {
		n.stop = make(chan struct{})
		n.done = make(chan struct{})
		go n.pollLoop(n.opts.FocusPollInterval, n.stop, n.done)
	}

	n.state = Observing
	log.Info().
		Int("observers", len(regs)).
		Dur("focus_poll", n.opts.FocusPollInterval).
		Msg("Notifier observing")
	return nil
}

// Stop cancels every registration and the focus ticker. It is safe to call
// on an idle notifier.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == Idle {
		return
	}

	for _, r := range n.regs {
		r.Cancel()
	}
	n.regs = nil

	if n.stop != nil {
		close(n.stop)
		<-n.done
		n.stop, n.done = nil, nil
	}

	n.state = Idle
	logger.WithComponent("notifier").Info().Msg("Notifier idle")
}

// onOSEvent runs on the backend's callback goroutine and must not block.
func (n *Notifier) onOSEvent(kind window.EventKind) {
	n.emit(Event{Class: Structural, Kind: kind})
}

func (n *Notifier) pollLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.flushOverflow()
			n.pollFocus()
		}
	}
}

// pollFocus emits a Cosmetic event when the frontmost window changed.
func (n *Notifier) pollFocus() {
	id, err := n.focus.FrontmostWindow()
	if err != nil {
		logger.WithComponent("notifier").Debug().Err(err).Msg("Focus poll failed")
		return
	}

	n.focusMu.Lock()
	defer n.focusMu.Unlock()
	if id == n.lastFocus {
		return
	}
	if n.emit(Event{Class: Cosmetic, Window: id}) {
		n.lastFocus = id
	}
}

// emit never blocks and reports whether ev was queued. A dropped Cosmetic
// event is retried by the next poll. A dropped Structural event is
// remembered and re-sent before the next event so a rebuild is never lost.
func (n *Notifier) emit(ev Event) bool {
	n.flushOverflow()

	select {
	case n.out <- ev:
		return true
	default:
		if ev.Class == Structural {
			n.overflowKind.Store(int32(ev.Kind))
			n.overflow.Store(true)
		}
		total := n.dropped.Add(1)
		logger.WithComponent("notifier").Debug().
			Stringer("class", ev.Class).
			Uint64("dropped", total).
			Msg("Event buffer full, dropping event")
		return false
	}
}

func (n *Notifier) flushOverflow() {
	if !n.overflow.CompareAndSwap(true, false) {
		return
	}
	ev := Event{Class: Structural, Kind: window.EventKind(n.overflowKind.Load())}
	select {
	case n.out <- ev:
	default:
		n.overflow.Store(true)
	}
}
