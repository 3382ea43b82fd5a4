package window

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// Resize primitives; swapped out in tests.
var (
	wmResize     = ewmh.ResizeWindow
	directResize = func(xu *xgbutil.XUtil, win xproto.Window, width, height int) {
		xwindow.New(xu, win).Resize(width, height)
	}
)

func resizeWindow(xu *xgbutil.XUtil, win xproto.Window, width, height int) error {
	if err := wmResize(xu, win, width, height); err != nil {
		directResize(xu, win, width, height)
	}
	return nil
}

// x11Element is a live handle on a single X11 client window.
type x11Element struct {
	b   *X11Backend
	win xproto.Window
}

func (e *x11Element) Position() (model.Point, error) {
	r, err := e.b.geometry(e.win)
	if err != nil {
		return model.Point{}, err
	}
	return r.Origin(), nil
}

func (e *x11Element) Size() (int, int, error) {
	r, err := e.b.geometry(e.win)
	if err != nil {
		return 0, 0, err
	}
	return r.Width, r.Height, nil
}

// SetSize resizes the window in place, asking the window manager first and
// configuring the window directly when the request is refused. Only the
// width and height flags are sent so the frame origin stays put.
func (e *x11Element) SetSize(width, height int) error {
	if _, err := e.b.geometry(e.win); err != nil {
		return err
	}
	return resizeWindow(e.b.xu, e.win, width, height)
}

func (e *x11Element) Focused() (bool, error) {
	active, err := ewmh.ActiveWindowGet(e.b.xu)
	if err != nil {
		return false, err
	}
	return active == e.win, nil
}

func (e *x11Element) Minimized() (bool, error) {
	states, err := ewmh.WmStateGet(e.b.xu, e.win)
	if err != nil {
		return false, err
	}
	for _, s := range states {
		if s == "_NET_WM_STATE_HIDDEN" {
			return true, nil
		}
	}
	return false, nil
}

// Capabilities reads _NET_WM_ALLOWED_ACTIONS. Window managers that do not
// publish the property are assumed to allow everything.
func (e *x11Element) Capabilities() model.Capability {
	actions, err := ewmh.WmAllowedActionsGet(e.b.xu, e.win)
	if err != nil || len(actions) == 0 {
		return model.Activatable | model.Closable | model.Resizable
	}

	caps := model.Activatable
	for _, a := range actions {
		switch a {
		case "_NET_WM_ACTION_CLOSE":
			caps |= model.Closable
		case "_NET_WM_ACTION_RESIZE":
			caps |= model.Resizable
		}
	}
	return caps
}

// Raise requests activation with source indication 2 (pager).
func (e *x11Element) Raise() error {
	return e.b.sendClientMessage(e.win, "_NET_ACTIVE_WINDOW", 2)
}

func (e *x11Element) Close() error {
	return e.b.sendClientMessage(e.win, "_NET_CLOSE_WINDOW", 0, 2)
}

// iconicState is the ICCCM IconicState value for WM_CHANGE_STATE.
const iconicState = 3

func (e *x11Element) Minimize() error {
	return e.b.sendClientMessage(e.win, "WM_CHANGE_STATE", iconicState)
}
