package window

import (
	"errors"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

var (
	// ErrWindowGone is returned when the window vanished between
	// enumeration and a detail query or action.
	ErrWindowGone = errors.New("window no longer exists")
	// ErrUnsupported is returned for actions the window does not accept.
	ErrUnsupported = errors.New("action not supported by window")
)

// Layer classifies an enumerated window. Only LayerNormal windows are shown.
type Layer int

const (
	LayerNormal Layer = iota
	LayerDock
	LayerDesktop
	LayerOverlay
	LayerUtility
)

func (l Layer) String() string {
	switch l {
	case LayerNormal:
		return "normal"
	case LayerDock:
		return "dock"
	case LayerDesktop:
		return "desktop"
	case LayerOverlay:
		return "overlay"
	default:
		return "utility"
	}
}

// Descriptor is the cheap per-window record returned by enumeration.
type Descriptor struct {
	ID     model.WindowID
	PID    model.ProcessID
	Layer  Layer
	Bounds model.Rect
	Title  string
}

// Detail is the result of a per-window detail query. A zero Display means
// the backend could not tell. Sticky windows are on every space.
type Detail struct {
	AppID   model.AppID
	Title   string
	Display model.DisplayID
	Space   model.SpaceID
	Sticky  bool
	Bounds  model.Rect
}

// DisplayInfo describes one physical display and its spaces.
type DisplayInfo struct {
	ID          model.DisplayID
	Frame       model.Rect
	Bounds      model.Rect
	Spaces      []model.SpaceID
	ActiveSpace model.SpaceID
}

// Source enumerates displays, spaces and windows.
type Source interface {
	EnumerateWindows() ([]Descriptor, error)
	DescribeWindow(id model.WindowID) (Detail, error)
	Displays() ([]DisplayInfo, error)
}

// Element is a live accessibility handle on one window. Every call may fail
// and results are advisory.
type Element interface {
	Position() (model.Point, error)
	Size() (width, height int, err error)
	SetSize(width, height int) error
	Focused() (bool, error)
	Minimized() (bool, error)
	Capabilities() model.Capability
	Raise() error
	Close() error
	Minimize() error
}

// Accessibility resolves live elements for windows.
type Accessibility interface {
	Element(pid model.ProcessID, id model.WindowID) (Element, error)
}

// EventKind is an OS change signal.
type EventKind int

const (
	WindowCreated EventKind = iota
	WindowDestroyed
	SpaceChanged
	DisplayReconfigured
)

func (k EventKind) String() string {
	switch k {
	case WindowCreated:
		return "window-created"
	case WindowDestroyed:
		return "window-destroyed"
	case SpaceChanged:
		return "space-changed"
	case DisplayReconfigured:
		return "display-reconfigured"
	default:
		return "unknown"
	}
}

// AllEventKinds lists every kind the notifier registers for.
var AllEventKinds = []EventKind{WindowCreated, WindowDestroyed, SpaceChanged, DisplayReconfigured}

// Registration is an active observer. Cancel is idempotent.
type Registration interface {
	Cancel()
}

// Events delivers OS change signals. Handlers may run on a backend goroutine
// and must not block.
type Events interface {
	Observe(kind EventKind, fn func(EventKind)) (Registration, error)
}

// Focus reports the window that currently has input focus.
type Focus interface {
	FrontmostWindow() (model.WindowID, error)
}

// Backend defines the window-system services the core consumes.
type Backend interface {
	Source
	Accessibility
	Events
	Focus

	// Name returns the backend name (e.g., "x11")
	Name() string

	// Close releases the connection to the display server
	Close() error
}
