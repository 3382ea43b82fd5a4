// Package snapshot turns the platform's enumeration into immutable
// display -> space -> window snapshots.
package snapshot

import (
	"errors"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

// PinChecker reports window pin state.
type PinChecker interface {
	IsPinned(id model.WindowID) bool
}

// Builder builds snapshots. It has no side effects on pins or order.
type Builder struct {
	src  window.Source
	pins PinChecker
}

// NewBuilder creates a builder. pins may be nil.
func NewBuilder(src window.Source, pins PinChecker) *Builder {
	return &Builder{src: src, pins: pins}
}

// BuildFull enumerates every display and normal-layer window. Windows whose
// detail query fails are skipped. If enumeration itself fails the result is
// an empty snapshot that is not marked Full, so nothing downstream treats
// the missing windows as gone.
func (b *Builder) BuildFull() *model.Snapshot {
	log := logger.WithComponent("snapshot")
	snap := model.NewSnapshot()

	displays, err := b.src.Displays()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to enumerate displays")
		return snap
	}
	for _, d := range displays {
		snap.AddDisplay(model.Display{
			ID:          d.ID,
			Frame:       d.Frame,
			Bounds:      d.Bounds,
			Spaces:      append([]model.SpaceID(nil), d.Spaces...),
			ActiveSpace: d.ActiveSpace,
		})
	}

	descs, err := b.src.EnumerateWindows()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to enumerate windows")
		return snap
	}
	snap.Full = true

	skipped := 0
	for _, desc := range descs {
		if desc.Layer != window.LayerNormal {
			continue
		}

		detail, err := b.src.DescribeWindow(desc.ID)
		if err != nil {
			skipped++
			event := log.Debug()
			if !errors.Is(err, window.ErrWindowGone) {
				event = log.Warn()
			}
			event.Err(err).Uint32("window_id", uint32(desc.ID)).Msg("Skipping window, detail query failed")
			continue
		}

		w := model.Window{
			ID:     desc.ID,
			PID:    desc.PID,
			AppID:  detail.AppID,
			Title:  detail.Title,
			Bounds: detail.Bounds,
		}
		if w.Title == "" {
			w.Title = desc.Title
		}
		w.Display, w.Space = place(snap, detail)
		w.Pinned = b.pinned(w.ID)

		if !snap.AddWindow(w) {
			log.Debug().Uint32("window_id", uint32(w.ID)).Msg("Duplicate window in enumeration")
		}
	}

	log.Debug().
		Int("windows", snap.Len()).
		Int("skipped", skipped).
		Int("displays", len(snap.DisplayOrder)).
		Msg("Full snapshot built")
	return snap
}

// BuildIncremental refreshes the geometry of the windows already in prev.
// Container assignment and displays are carried over; windows that fail to
// answer are omitted. A nil prev falls back to BuildFull.
func (b *Builder) BuildIncremental(prev *model.Snapshot) *model.Snapshot {
	if prev == nil {
		return b.BuildFull()
	}
	log := logger.WithComponent("snapshot")

	snap := model.NewSnapshot()
	for _, id := range prev.DisplayOrder {
		snap.AddDisplay(prev.Displays[id])
	}

	for _, c := range prev.Containers() {
		for _, id := range prev.Spaces[c] {
			detail, err := b.src.DescribeWindow(id)
			if err != nil {
				log.Debug().Err(err).Uint32("window_id", uint32(id)).Msg("Dropping window from incremental snapshot")
				continue
			}
			w := prev.Windows[id]
			w.Bounds = detail.Bounds
			if detail.Title != "" {
				w.Title = detail.Title
			}
			w.Pinned = b.pinned(id)
			snap.AddWindow(w)
		}
	}

	log.Debug().Int("windows", snap.Len()).Msg("Incremental snapshot built")
	return snap
}

func (b *Builder) pinned(id model.WindowID) bool {
	return b.pins != nil && b.pins.IsPinned(id)
}

// place picks the display and space for a window: the reported display if
// known, else the display containing the window center, else the first
// display. Sticky windows and spaces the display does not carry land in the
// display's active space.
func place(snap *model.Snapshot, detail window.Detail) (model.DisplayID, model.SpaceID) {
	disp, ok := snap.Displays[detail.Display]
	if !ok {
		center := detail.Bounds.Center()
		for _, id := range snap.DisplayOrder {
			if snap.Displays[id].Frame.Contains(center) {
				disp, ok = snap.Displays[id], true
				break
			}
		}
	}
	if !ok {
		disp, ok = snap.Primary()
	}
	if !ok {
		return detail.Display, detail.Space
	}

	if detail.Sticky || !hasSpace(disp, detail.Space) {
		return disp.ID, disp.ActiveSpace
	}
	return disp.ID, detail.Space
}

func hasSpace(d model.Display, s model.SpaceID) bool {
	for _, sp := range d.Spaces {
		if sp == s {
			return true
		}
	}
	return false
}
