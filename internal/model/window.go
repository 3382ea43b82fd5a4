// Package model holds the records shared by the snapshot builder, the order
// reconciler and the presentation-facing view.
package model

import (
	"fmt"
	"math"
	"strings"
)

// WindowID is the OS-assigned window identity, stable for the window's lifetime.
type WindowID uint32

// SpaceID identifies a virtual desktop.
type SpaceID uint64

// DisplayID identifies a physical display.
type DisplayID uint32

// ProcessID is the owning process of a window.
type ProcessID int

// AppID groups windows belonging to one application (WM_CLASS, bundle id).
type AppID string

// AggregateSpaceID is reserved for the synthetic "all windows" container.
// OS desktops are small indices, so the top of the range never collides.
const AggregateSpaceID SpaceID = math.MaxUint64

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is a screen rectangle in root coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }
func (r Rect) Right() int    { return r.X + r.Width }
func (r Rect) Bottom() int   { return r.Y + r.Height }
func (r Rect) Empty() bool   { return r.Width <= 0 || r.Height <= 0 }

// Center returns the midpoint, used to assign windows to displays.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r (right and bottom edges excluded).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersects reports whether the two rectangles share any area.
func (r Rect) Intersects(o Rect) bool {
	return max(r.X, o.X) < min(r.Right(), o.Right()) &&
		max(r.Y, o.Y) < min(r.Bottom(), o.Bottom())
}

// Intersect returns the shared area, or a zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x1, y1 := max(r.X, o.X), max(r.Y, o.Y)
	x2, y2 := min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Window is one observed window. Records are never mutated across
// snapshots; Pinned is recomputed from the pin registry on every build.
type Window struct {
	ID      WindowID  `json:"id"`
	PID     ProcessID `json:"pid"`
	AppID   AppID     `json:"app_id"`
	Title   string    `json:"title"`
	Display DisplayID `json:"display"`
	Space   SpaceID   `json:"space"`
	Bounds  Rect      `json:"bounds"`
	Pinned  bool      `json:"pinned"`
}

// Container returns the per-space container this window belongs to.
func (w Window) Container() ContainerID {
	return ContainerID{Display: w.Display, Space: w.Space}
}

// Capability is a set of actions a window currently accepts.
type Capability uint8

const (
	Activatable Capability = 1 << iota
	Closable
	Resizable
)

// Has reports whether every bit of c2 is present.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

func (c Capability) String() string {
	var parts []string
	if c.Has(Activatable) {
		parts = append(parts, "activatable")
	}
	if c.Has(Closable) {
		parts = append(parts, "closable")
	}
	if c.Has(Resizable) {
		parts = append(parts, "resizable")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
