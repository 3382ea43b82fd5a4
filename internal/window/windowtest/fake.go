// Package windowtest provides an in-memory window system for tests.
package windowtest

import (
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

// Backend is a scriptable window.Backend.
type Backend struct {
	mu sync.Mutex

	order       []model.WindowID
	descriptors map[model.WindowID]window.Descriptor
	details     map[model.WindowID]window.Detail
	detailErr   map[model.WindowID]error
	enumErr     error
	displays    []window.DisplayInfo
	displaysErr error
	frontmost   model.WindowID
	focusErr    error
	elements    map[model.WindowID]*Element

	observeErr map[window.EventKind]error
	observers  map[window.EventKind]map[int]func(window.EventKind)
	nextObs    int

	DescribeCalls int
	Closed        bool
}

var _ window.Backend = (*Backend)(nil)

// New returns an empty fake window system.
func New() *Backend {
	return &Backend{
		descriptors: make(map[model.WindowID]window.Descriptor),
		details:     make(map[model.WindowID]window.Detail),
		detailErr:   make(map[model.WindowID]error),
		elements:    make(map[model.WindowID]*Element),
		observeErr:  make(map[window.EventKind]error),
		observers:   make(map[window.EventKind]map[int]func(window.EventKind)),
	}
}

// SetDisplays replaces the display list.
func (b *Backend) SetDisplays(displays ...window.DisplayInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.displays = displays
}

// FailDisplays makes Displays return err.
func (b *Backend) FailDisplays(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.displaysErr = err
}

// Add registers a normal-layer window and a matching live element.
func (b *Backend) Add(w model.Window) *Element {
	return b.AddLayer(w, window.LayerNormal)
}

// AddLayer registers a window on the given layer.
func (b *Backend) AddLayer(w model.Window, layer window.Layer) *Element {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.descriptors[w.ID]; !ok {
		b.order = append(b.order, w.ID)
	}
	b.descriptors[w.ID] = window.Descriptor{
		ID:     w.ID,
		PID:    w.PID,
		Layer:  layer,
		Bounds: w.Bounds,
		Title:  w.Title,
	}
	b.details[w.ID] = window.Detail{
		AppID:   w.AppID,
		Title:   w.Title,
		Display: w.Display,
		Space:   w.Space,
		Bounds:  w.Bounds,
	}
	el := &Element{
		Pos:  w.Bounds.Origin(),
		W:    w.Bounds.Width,
		H:    w.Bounds.Height,
		Caps: model.Activatable | model.Closable | model.Resizable,
	}
	b.elements[w.ID] = el
	return el
}

// SetSticky marks a window as present on every space.
func (b *Backend) SetSticky(id model.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.details[id]
	d.Sticky = true
	b.details[id] = d
}

// Move changes the bounds reported by enumeration, detail queries and the
// live element.
func (b *Backend) Move(id model.WindowID, bounds model.Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc := b.descriptors[id]
	desc.Bounds = bounds
	b.descriptors[id] = desc
	d := b.details[id]
	d.Bounds = bounds
	b.details[id] = d
	if el := b.elements[id]; el != nil {
		el.mu.Lock()
		el.Pos = bounds.Origin()
		el.W, el.H = bounds.Width, bounds.Height
		el.mu.Unlock()
	}
}

// Remove deletes a window and its element.
func (b *Backend) Remove(id model.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.descriptors, id)
	delete(b.details, id)
	delete(b.elements, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Reorder sets the enumeration order; ids not listed keep their relative
// order after the listed ones.
func (b *Backend) Reorder(ids ...model.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[model.WindowID]bool, len(ids))
	next := make([]model.WindowID, 0, len(b.order))
	for _, id := range ids {
		if _, ok := b.descriptors[id]; ok && !seen[id] {
			seen[id] = true
			next = append(next, id)
		}
	}
	for _, id := range b.order {
		if !seen[id] {
			next = append(next, id)
		}
	}
	b.order = next
}

// FailDetail makes DescribeWindow(id) return err.
func (b *Backend) FailDetail(id model.WindowID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.detailErr, id)
		return
	}
	b.detailErr[id] = err
}

// FailEnumerate makes EnumerateWindows return err.
func (b *Backend) FailEnumerate(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumErr = err
}

// SetFrontmost sets the focused window reported by FrontmostWindow.
func (b *Backend) SetFrontmost(id model.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frontmost = id
}

// FailObserve makes Observe(kind) fail.
func (b *Backend) FailObserve(kind window.EventKind, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observeErr[kind] = err
}

// Emit delivers kind to every registered observer.
func (b *Backend) Emit(kind window.EventKind) {
	b.mu.Lock()
	fns := make([]func(window.EventKind), 0, len(b.observers[kind]))
	for _, fn := range b.observers[kind] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// ObserverCount returns the number of live registrations for kind.
func (b *Backend) ObserverCount(kind window.EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers[kind])
}

// ElementFor returns the fake element of id, if any.
func (b *Backend) ElementFor(id model.WindowID) *Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elements[id]
}

// EnumerateWindows implements window.Source.
func (b *Backend) EnumerateWindows() ([]window.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	out := make([]window.Descriptor, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.descriptors[id])
	}
	return out, nil
}

// DescribeWindow implements window.Source.
func (b *Backend) DescribeWindow(id model.WindowID) (window.Detail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DescribeCalls++
	if err := b.detailErr[id]; err != nil {
		return window.Detail{}, err
	}
	d, ok := b.details[id]
	if !ok {
		return window.Detail{}, window.ErrWindowGone
	}
	return d, nil
}

// Displays implements window.Source.
func (b *Backend) Displays() ([]window.DisplayInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.displaysErr != nil {
		return nil, b.displaysErr
	}
	return append([]window.DisplayInfo(nil), b.displays...), nil
}

// Element implements window.Accessibility.
func (b *Backend) Element(_ model.ProcessID, id model.WindowID) (window.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.elements[id]
	if !ok {
		return nil, window.ErrWindowGone
	}
	return el, nil
}

// Observe implements window.Events.
func (b *Backend) Observe(kind window.EventKind, fn func(window.EventKind)) (window.Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.observeErr[kind]; err != nil {
		return nil, err
	}
	if b.observers[kind] == nil {
		b.observers[kind] = make(map[int]func(window.EventKind))
	}
	b.nextObs++
	key := b.nextObs
	b.observers[kind][key] = fn
	return &registration{b: b, kind: kind, key: key}, nil
}

// FrontmostWindow implements window.Focus.
func (b *Backend) FrontmostWindow() (model.WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.focusErr != nil {
		return 0, b.focusErr
	}
	return b.frontmost, nil
}

// Name implements window.Backend.
func (b *Backend) Name() string { return "fake" }

// Close implements window.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

type registration struct {
	b    *Backend
	kind window.EventKind
	key  int
	once sync.Once
}

func (r *registration) Cancel() {
	r.once.Do(func() {
		r.b.mu.Lock()
		defer r.b.mu.Unlock()
		delete(r.b.observers[r.kind], r.key)
	})
}

// Element is a fake live window handle that records mutations.
type Element struct {
	mu sync.Mutex

	Pos  model.Point
	W, H int
	Caps model.Capability

	PositionErr error
	SetSizeErr  error
	ActionErr   error

	SetSizeCalls [][2]int
	Raised       int
	ClosedCount  int
	Minimizes    int
}

func (e *Element) Position() (model.Point, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PositionErr != nil {
		return model.Point{}, e.PositionErr
	}
	return e.Pos, nil
}

func (e *Element) Size() (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.W, e.H, nil
}

func (e *Element) SetSize(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SetSizeErr != nil {
		return e.SetSizeErr
	}
	e.SetSizeCalls = append(e.SetSizeCalls, [2]int{width, height})
	e.W, e.H = width, height
	return nil
}

func (e *Element) Focused() (bool, error)   { return false, nil }
func (e *Element) Minimized() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Minimizes > 0, nil
}

func (e *Element) Capabilities() model.Capability {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Caps
}

func (e *Element) Raise() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActionErr != nil {
		return e.ActionErr
	}
	e.Raised++
	return nil
}

func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActionErr != nil {
		return e.ActionErr
	}
	e.ClosedCount++
	return nil
}

func (e *Element) Minimize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ActionErr != nil {
		return e.ActionErr
	}
	e.Minimizes++
	return nil
}

// Sizes returns a copy of the recorded SetSize calls.
func (e *Element) Sizes() [][2]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][2]int(nil), e.SetSizeCalls...)
}
