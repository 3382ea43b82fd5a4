package window

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// stickyDesktop is the _NET_WM_DESKTOP value of windows shown on all desktops.
const stickyDesktop = 0xFFFFFFFF

// X11Backend implements Backend on top of EWMH and RandR.
type X11Backend struct {
	xu   *xgbutil.XUtil
	root xproto.Window

	mu       sync.RWMutex
	displays []DisplayInfo

	events *x11Events
}

var _ Backend = (*X11Backend)(nil)

// NewX11Backend connects to the X server named by $DISPLAY.
func NewX11Backend() (*X11Backend, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := randr.Init(xu.Conn()); err != nil {
		logger.WithComponent("x11-backend").Warn().Err(err).Msg("RandR unavailable, using root window as single display")
	}

	b := &X11Backend{
		xu:   xu,
		root: xu.RootWin(),
	}
	b.events = newX11Events(b)
	return b, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Close stops event delivery and closes the X11 connection
func (b *X11Backend) Close() error {
	b.events.stop()
	b.xu.Conn().Close()
	return nil
}

// EnumerateWindows lists EWMH managed clients, falling back to the root
// window's children when the window manager does not publish a client list.
func (b *X11Backend) EnumerateWindows() ([]Descriptor, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := ewmh.ClientListGet(b.xu)
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("EnumerateWindows: EWMH client list unavailable, falling back to QueryTree")
		tree, qerr := xproto.QueryTree(b.xu.Conn(), b.root).Reply()
		if qerr != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", qerr)
		}
		ids = tree.Children
	}

	out := make([]Descriptor, 0, len(ids))
	for _, win := range ids {
		bounds, err := b.geometry(win)
		if err != nil {
			// Closed between listing and query.
			log.Debug().Uint32("window_id", uint32(win)).Err(err).Msg("EnumerateWindows: skipping window without geometry")
			continue
		}

		desc := Descriptor{
			ID:     model.WindowID(win),
			Layer:  b.layer(win),
			Bounds: bounds,
			Title:  b.title(win),
		}
		if pid, err := ewmh.WmPidGet(b.xu, win); err == nil {
			desc.PID = model.ProcessID(pid)
		}
		out = append(out, desc)
	}

	log.Debug().Int("count", len(out)).Msg("EnumerateWindows: done")
	return out, nil
}

// DescribeWindow reads the attributes needed to place a window.
func (b *X11Backend) DescribeWindow(id model.WindowID) (Detail, error) {
	win := xproto.Window(id)

	bounds, err := b.geometry(win)
	if err != nil {
		return Detail{}, fmt.Errorf("window %d: %w", id, ErrWindowGone)
	}

	d := Detail{
		Title:  b.title(win),
		Bounds: bounds,
	}

	if class, err := icccm.WmClassGet(b.xu, win); err == nil {
		d.AppID = model.AppID(class.Class)
		if d.AppID == "" {
			d.AppID = model.AppID(class.Instance)
		}
	}

	desktop, err := ewmh.WmDesktopGet(b.xu, win)
	switch {
	case err != nil, desktop == stickyDesktop:
		d.Sticky = true
	default:
		d.Space = model.SpaceID(desktop)
	}

	center := bounds.Center()
	for _, disp := range b.cachedDisplays() {
		if disp.Frame.Contains(center) {
			d.Display = disp.ID
			break
		}
	}

	return d, nil
}

// Displays returns one DisplayInfo per active RandR CRTC. Every display
// carries the full EWMH desktop set since X11 desktops span all monitors.
func (b *X11Backend) Displays() ([]DisplayInfo, error) {
	frames, err := b.monitors()
	if err != nil {
		return nil, err
	}

	count := 1
	if n, err := ewmh.NumberOfDesktopsGet(b.xu); err == nil && n > 0 {
		count = int(n)
	}
	spaces := make([]model.SpaceID, count)
	for i := range spaces {
		spaces[i] = model.SpaceID(i)
	}

	var active model.SpaceID
	if cur, err := ewmh.CurrentDesktopGet(b.xu); err == nil {
		active = model.SpaceID(cur)
	}

	var workarea model.Rect
	if areas, err := ewmh.WorkareaGet(b.xu); err == nil && int(active) < len(areas) {
		wa := areas[active]
		workarea = model.Rect{X: wa.X, Y: wa.Y, Width: int(wa.Width), Height: int(wa.Height)}
	}

	out := make([]DisplayInfo, 0, len(frames))
	for i, frame := range frames {
		usable := frame
		if isect := frame.Intersect(workarea); !isect.Empty() {
			usable = isect
		}
		out = append(out, DisplayInfo{
			ID:          model.DisplayID(i + 1),
			Frame:       frame,
			Bounds:      usable,
			Spaces:      append([]model.SpaceID(nil), spaces...),
			ActiveSpace: active,
		})
	}

	b.mu.Lock()
	b.displays = out
	b.mu.Unlock()
	return out, nil
}

func (b *X11Backend) cachedDisplays() []DisplayInfo {
	b.mu.RLock()
	cached := b.displays
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}
	displays, err := b.Displays()
	if err != nil {
		return nil
	}
	return displays
}

// monitors returns the frame of each active CRTC, or the root window when
// RandR reports nothing.
func (b *X11Backend) monitors() ([]model.Rect, error) {
	conn := b.xu.Conn()

	var frames []model.Rect
	resources, err := randr.GetScreenResources(conn, b.root).Reply()
	if err == nil {
		for _, crtc := range resources.Crtcs {
			info, err := randr.GetCrtcInfo(conn, crtc, resources.ConfigTimestamp).Reply()
			if err != nil {
				continue
			}
			if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
				continue
			}
			frames = append(frames, model.Rect{
				X:      int(info.X),
				Y:      int(info.Y),
				Width:  int(info.Width),
				Height: int(info.Height),
			})
		}
	}

	if len(frames) == 0 {
		geom, gerr := xproto.GetGeometry(conn, xproto.Drawable(b.root)).Reply()
		if gerr != nil {
			return nil, fmt.Errorf("failed to read root geometry: %w", gerr)
		}
		frames = append(frames, model.Rect{Width: int(geom.Width), Height: int(geom.Height)})
	}
	return frames, nil
}

// FrontmostWindow returns _NET_ACTIVE_WINDOW.
func (b *X11Backend) FrontmostWindow() (model.WindowID, error) {
	win, err := ewmh.ActiveWindowGet(b.xu)
	if err != nil {
		return 0, err
	}
	return model.WindowID(win), nil
}

// Element returns a live handle on the window, verifying that it still exists.
func (b *X11Backend) Element(_ model.ProcessID, id model.WindowID) (Element, error) {
	win := xproto.Window(id)
	if _, err := xproto.GetGeometry(b.xu.Conn(), xproto.Drawable(win)).Reply(); err != nil {
		return nil, fmt.Errorf("window %d: %w", id, ErrWindowGone)
	}
	return &x11Element{b: b, win: win}, nil
}

// geometry returns the window rectangle in root coordinates.
func (b *X11Backend) geometry(win xproto.Window) (model.Rect, error) {
	conn := b.xu.Conn()
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return model.Rect{}, err
	}
	translated, err := xproto.TranslateCoordinates(conn, win, b.root, 0, 0).Reply()
	if err != nil {
		return model.Rect{}, err
	}
	return model.Rect{
		X:      int(translated.DstX),
		Y:      int(translated.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

func (b *X11Backend) title(win xproto.Window) string {
	if name, err := ewmh.WmNameGet(b.xu, win); err == nil && name != "" {
		return name
	}
	if name, err := icccm.WmNameGet(b.xu, win); err == nil {
		return name
	}
	return ""
}

// layer classifies a window from _NET_WM_WINDOW_TYPE and _NET_WM_STATE.
func (b *X11Backend) layer(win xproto.Window) Layer {
	types, err := ewmh.WmWindowTypeGet(b.xu, win)
	if err != nil {
		types = nil
	}
	l := layerForTypes(types)
	if l != LayerNormal {
		return l
	}
	if states, err := ewmh.WmStateGet(b.xu, win); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_SKIP_TASKBAR" {
				return LayerUtility
			}
		}
	}
	return LayerNormal
}

// layerForTypes maps EWMH window types onto layers. Untyped windows are
// treated as normal, as EWMH recommends for managed top-level windows.
func layerForTypes(types []string) Layer {
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DIALOG":
			return LayerNormal
		case "_NET_WM_WINDOW_TYPE_DOCK":
			return LayerDock
		case "_NET_WM_WINDOW_TYPE_DESKTOP":
			return LayerDesktop
		case "_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION",
			"_NET_WM_WINDOW_TYPE_TOOLTIP",
			"_NET_WM_WINDOW_TYPE_DROPDOWN_MENU",
			"_NET_WM_WINDOW_TYPE_POPUP_MENU",
			"_NET_WM_WINDOW_TYPE_COMBO",
			"_NET_WM_WINDOW_TYPE_DND":
			return LayerOverlay
		case "_NET_WM_WINDOW_TYPE_TOOLBAR",
			"_NET_WM_WINDOW_TYPE_MENU",
			"_NET_WM_WINDOW_TYPE_UTILITY":
			return LayerUtility
		}
	}
	return LayerNormal
}

// sendClientMessage sends an EWMH/ICCCM client message to the root window.
func (b *X11Backend) sendClientMessage(win xproto.Window, messageType string, data ...uint32) error {
	atom, err := xprop.Atm(b.xu, messageType)
	if err != nil {
		return fmt.Errorf("failed to intern %s: %w", messageType, err)
	}

	payload := make([]uint32, 5)
	copy(payload, data)

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New(payload),
	}

	return xproto.SendEventChecked(
		b.xu.Conn(),
		false,
		b.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}
