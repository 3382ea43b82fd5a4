package window

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService                    = "org.kde.KWin"
	kwinInterface                  = "org.kde.KWin"
	virtualDesktopManagerInterface = "org.kde.KWin.VirtualDesktopManager"
)

// KWinSignals reports SpaceChanged from KWin's session bus signals. KWin
// announces desktop switches on D-Bus before the EWMH root property is
// rewritten, so it is joined with the X11 events as an extra source.
type KWinSignals struct {
	conn *dbus.Conn

	mu       sync.Mutex
	handlers map[int]func(EventKind)
	next     int
	started  bool
	signals  chan *dbus.Signal
	stop     chan struct{}
}

// ConnectKWinSignals connects to the session bus and checks that KWin is
// running.
func ConnectKWinSignals() (*KWinSignals, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	kwinFound := false
	for _, name := range names {
		if name == kwinService {
			kwinFound = true
			break
		}
	}
	if !kwinFound {
		conn.Close()
		return nil, fmt.Errorf("KWin service not found on D-Bus")
	}

	logger.WithComponent("kwin-signals").Info().Msg("Connected to KWin D-Bus service")
	return newKWinSignals(conn), nil
}

func newKWinSignals(conn *dbus.Conn) *KWinSignals {
	return &KWinSignals{
		conn:     conn,
		handlers: make(map[int]func(EventKind)),
	}
}

// Observe implements Events for SpaceChanged. Other kinds return
// ErrUnsupported.
func (k *KWinSignals) Observe(kind EventKind, fn func(EventKind)) (Registration, error) {
	if kind != SpaceChanged {
		return nil, fmt.Errorf("kwin %s: %w", kind, ErrUnsupported)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.started {
		if err := k.start(); err != nil {
			return nil, err
		}
		k.started = true
	}

	k.next++
	key := k.next
	k.handlers[key] = fn
	return &cancelOnce{fn: func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.handlers, key)
	}}, nil
}

// start must be called with mu held.
func (k *KWinSignals) start() error {
	log := logger.WithComponent("kwin-signals")

	if err := k.conn.AddMatchSignal(
		dbus.WithMatchInterface(virtualDesktopManagerInterface),
		dbus.WithMatchMember("currentChanged"),
	); err != nil {
		return fmt.Errorf("failed to match VirtualDesktopManager.currentChanged: %w", err)
	}

	// "Show Desktop" hides every window without switching spaces.
	if err := k.conn.AddMatchSignal(
		dbus.WithMatchInterface(kwinInterface),
		dbus.WithMatchMember("showingDesktopChanged"),
	); err != nil {
		log.Warn().Err(err).Msg("Failed to add match for KWin.showingDesktopChanged signal")
	}

	k.signals = make(chan *dbus.Signal, 10)
	k.stop = make(chan struct{})
	k.conn.Signal(k.signals)
	go k.loop(k.signals, k.stop)

	log.Debug().Msg("Subscribed to KWin desktop signals")
	return nil
}

func (k *KWinSignals) loop(signals <-chan *dbus.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case sig := <-signals:
			if sig != nil {
				k.handleSignal(sig)
			}
		}
	}
}

func (k *KWinSignals) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case virtualDesktopManagerInterface + ".currentChanged",
		kwinInterface + ".showingDesktopChanged":
	default:
		return
	}

	k.mu.Lock()
	fns := make([]func(EventKind), 0, len(k.handlers))
	for _, fn := range k.handlers {
		fns = append(fns, fn)
	}
	k.mu.Unlock()

	for _, fn := range fns {
		fn(SpaceChanged)
	}
}

// Close stops signal delivery and closes the bus connection.
func (k *KWinSignals) Close() error {
	k.mu.Lock()
	started := k.started
	k.started = false
	k.handlers = make(map[int]func(EventKind))
	k.mu.Unlock()

	if started {
		close(k.stop)
		k.conn.RemoveSignal(k.signals)
	}
	if k.conn == nil {
		return nil
	}
	return k.conn.Close()
}
