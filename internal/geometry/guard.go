// Package geometry keeps windows from extending under the overlay strip.
package geometry

import (
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

// Epsilon is added to every overlap to absorb rounding and shared borders.
const Epsilon = 1

// Outcome is what ResolveOverlap did with one window.
type Outcome int

const (
	// OutcomeClear means the window does not reach the overlay.
	OutcomeClear Outcome = iota
	// OutcomeMoving means the live position differs from the snapshot and
	// the window was left alone.
	OutcomeMoving
	// OutcomeUnavailable means the live element could not be obtained.
	OutcomeUnavailable
	// OutcomeTooSmall means shrinking by the overlap would leave no height.
	OutcomeTooSmall
	// OutcomeUnsupported means the window cannot be resized.
	OutcomeUnsupported
	// OutcomeResized means the window was shrunk by exactly the overlap.
	OutcomeResized
	// OutcomeFailed means the resize request was rejected.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClear:
		return "clear"
	case OutcomeMoving:
		return "moving"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeTooSmall:
		return "too-small"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeResized:
		return "resized"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Guard resolves overlap between windows and the overlay. It is best effort:
// every failure is logged and reported as an Outcome, never returned.
type Guard struct {
	ax window.Accessibility
}

// NewGuard creates a guard using ax for live queries and resizes.
func NewGuard(ax window.Accessibility) *Guard {
	return &Guard{ax: ax}
}

// Overlap returns how far w reaches into an overlay whose top edge is at
// overlayTop, including Epsilon.
func Overlap(w model.Window, overlayTop int) int {
	return w.Bounds.Bottom() - overlayTop + Epsilon
}

// ResolveOverlap shrinks w so its bottom edge clears the overlay. Origin and
// width never change, and a window whose live position no longer matches
// w.Bounds is presumed to be dragged and is not touched.
func (g *Guard) ResolveOverlap(w model.Window, overlayTop, overlayHeight int) Outcome {
	if overlayHeight <= 0 {
		return OutcomeClear
	}
	overlap := Overlap(w, overlayTop)
	if overlap <= 0 {
		return OutcomeClear
	}

	log := logger.WithComponent("geometry")

	el, err := g.ax.Element(w.PID, w.ID)
	if err != nil {
		log.Debug().Err(err).Uint32("window_id", uint32(w.ID)).Msg("Overlap not resolved, element unavailable")
		return OutcomeUnavailable
	}

	live, err := el.Position()
	if err != nil {
		log.Debug().Err(err).Uint32("window_id", uint32(w.ID)).Msg("Overlap not resolved, position unreadable")
		return OutcomeUnavailable
	}
	if live != w.Bounds.Origin() {
		log.Debug().
			Uint32("window_id", uint32(w.ID)).
			Int("live_x", live.X).
			Int("live_y", live.Y).
			Stringer("bounds", w.Bounds).
			Msg("Window is moving, leaving it alone")
		return OutcomeMoving
	}

	height := w.Bounds.Height - overlap
	if height <= 0 {
		log.Debug().Uint32("window_id", uint32(w.ID)).Int("overlap", overlap).Msg("Window too small to clear overlay")
		return OutcomeTooSmall
	}
	if !el.Capabilities().Has(model.Resizable) {
		return OutcomeUnsupported
	}

	if err := el.SetSize(w.Bounds.Width, height); err != nil {
		log.Warn().Err(err).Uint32("window_id", uint32(w.ID)).Msg("Failed to resize window")
		return OutcomeFailed
	}

	log.Debug().
		Uint32("window_id", uint32(w.ID)).
		Int("overlap", overlap).
		Int("height", height).
		Msg("Window resized to clear overlay")
	return OutcomeResized
}

// Apply runs ResolveOverlap for every window that horizontally intersects
// the overlay. Windows off to the side are not included in the result.
func (g *Guard) Apply(windows []model.Window, overlay model.Rect) map[model.WindowID]Outcome {
	out := make(map[model.WindowID]Outcome)
	if overlay.Empty() {
		return out
	}
	for _, w := range windows {
		if w.Bounds.Right() <= overlay.X || w.Bounds.X >= overlay.Right() {
			continue
		}
		out[w.ID] = g.ResolveOverlap(w, overlay.Y, overlay.Height)
	}
	return out
}
