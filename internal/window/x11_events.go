package window

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/bryanchriswhite/taskdock/internal/logger"
)

// x11Events turns root window notifications into EventKinds. Window
// creation and destruction are derived by diffing _NET_CLIENT_LIST, space
// changes come from _NET_CURRENT_DESKTOP and display changes from root
// ConfigureNotify.
type x11Events struct {
	b *X11Backend

	mu       sync.Mutex
	handlers map[EventKind]map[int]func(EventKind)
	next     int
	started  bool
	clients  map[xproto.Window]struct{}

	clientListAtom     xproto.Atom
	currentDesktopAtom xproto.Atom
}

func newX11Events(b *X11Backend) *x11Events {
	return &x11Events{
		b:        b,
		handlers: make(map[EventKind]map[int]func(EventKind)),
		clients:  make(map[xproto.Window]struct{}),
	}
}

// Observe implements Events. The X event loop is started on first use.
func (b *X11Backend) Observe(kind EventKind, fn func(EventKind)) (Registration, error) {
	return b.events.observe(kind, fn)
}

func (e *x11Events) observe(kind EventKind, fn func(EventKind)) (Registration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		if err := e.start(); err != nil {
			return nil, fmt.Errorf("observe %s: %w", kind, err)
		}
		e.started = true
	}

	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[int]func(EventKind))
	}
	e.next++
	key := e.next
	e.handlers[kind][key] = fn
	return &x11Registration{events: e, kind: kind, key: key}, nil
}

// start must be called with mu held.
func (e *x11Events) start() error {
	xu := e.b.xu
	root := e.b.root
	log := logger.WithComponent("x11-events")

	var err error
	if e.clientListAtom, err = xprop.Atm(xu, "_NET_CLIENT_LIST"); err != nil {
		return err
	}
	if e.currentDesktopAtom, err = xprop.Atm(xu, "_NET_CURRENT_DESKTOP"); err != nil {
		return err
	}

	if ids, err := ewmh.ClientListGet(xu); err == nil {
		for _, id := range ids {
			e.clients[id] = struct{}{}
		}
	}

	if err := xwindow.New(xu, root).Listen(xproto.EventMaskPropertyChange, xproto.EventMaskStructureNotify); err != nil {
		return fmt.Errorf("failed to listen on root window: %w", err)
	}

	xevent.PropertyNotifyFun(e.onProperty).Connect(xu, root)
	xevent.ConfigureNotifyFun(func(_ *xgbutil.XUtil, _ xevent.ConfigureNotifyEvent) {
		e.dispatch(DisplayReconfigured)
	}).Connect(xu, root)

	go xevent.Main(xu)

	log.Info().Msg("Listening for root window events")
	return nil
}

func (e *x11Events) onProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	switch ev.Atom {
	case e.currentDesktopAtom:
		e.dispatch(SpaceChanged)
	case e.clientListAtom:
		ids, err := ewmh.ClientListGet(xu)
		if err != nil {
			return
		}
		created, destroyed := e.diffClients(ids)
		if created {
			e.dispatch(WindowCreated)
		}
		if destroyed {
			e.dispatch(WindowDestroyed)
		}
	}
}

// diffClients replaces the known client set and reports whether any window
// was added or removed.
func (e *x11Events) diffClients(ids []xproto.Window) (created, destroyed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[xproto.Window]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
		if _, ok := e.clients[id]; !ok {
			created = true
		}
	}
	for id := range e.clients {
		if _, ok := next[id]; !ok {
			destroyed = true
		}
	}
	e.clients = next
	return created, destroyed
}

func (e *x11Events) dispatch(kind EventKind) {
	e.mu.Lock()
	fns := make([]func(EventKind), 0, len(e.handlers[kind]))
	for _, fn := range e.handlers[kind] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
}

func (e *x11Events) cancel(kind EventKind, key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[kind], key)
}

func (e *x11Events) stop() {
	e.mu.Lock()
	started := e.started
	e.started = false
	e.handlers = make(map[EventKind]map[int]func(EventKind))
	e.mu.Unlock()

	if started {
		xevent.Detach(e.b.xu, e.b.root)
		xevent.Quit(e.b.xu)
	}
}

type x11Registration struct {
	events *x11Events
	kind   EventKind
	key    int
	once   sync.Once
}

func (r *x11Registration) Cancel() {
	r.once.Do(func() {
		r.events.cancel(r.kind, r.key)
	})
}
