package window

import (
	"fmt"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// Manager executes user intents (activate, close, minimize) against live
// windows. Failures are logged and the intent dropped; the next snapshot
// reflects whatever the OS actually did.
type Manager struct {
	ax Accessibility
}

// NewManager creates a new intent executor
func NewManager(ax Accessibility) *Manager {
	return &Manager{ax: ax}
}

// Capabilities returns the actions w currently accepts, or none when the
// element cannot be resolved.
func (m *Manager) Capabilities(w model.Window) model.Capability {
	el, err := m.ax.Element(w.PID, w.ID)
	if err != nil {
		return 0
	}
	return el.Capabilities()
}

// Activate raises w and gives it input focus.
func (m *Manager) Activate(w model.Window) error {
	return m.perform(w, "activate", model.Activatable, Element.Raise)
}

// Close presses the window's close button.
func (m *Manager) Close(w model.Window) error {
	return m.perform(w, "close", model.Closable, Element.Close)
}

// Minimize iconifies w.
func (m *Manager) Minimize(w model.Window) error {
	return m.perform(w, "minimize", model.Activatable, Element.Minimize)
}

func (m *Manager) perform(w model.Window, action string, need model.Capability, fn func(Element) error) error {
	log := logger.WithComponent("window")

	el, err := m.ax.Element(w.PID, w.ID)
	if err != nil {
		log.Debug().
			Err(err).
			Uint32("window_id", uint32(w.ID)).
			Str("action", action).
			Msg("Dropping intent, element unavailable")
		return fmt.Errorf("%s window %d: %w", action, w.ID, err)
	}

	if caps := el.Capabilities(); !caps.Has(need) {
		log.Debug().
			Uint32("window_id", uint32(w.ID)).
			Str("action", action).
			Stringer("capabilities", caps).
			Msg("Dropping intent, capability missing")
		return fmt.Errorf("%s window %d: %w", action, w.ID, ErrUnsupported)
	}

	if err := fn(el); err != nil {
		log.Warn().
			Err(err).
			Uint32("window_id", uint32(w.ID)).
			Str("action", action).
			Msg("Window action failed")
		return fmt.Errorf("%s window %d: %w", action, w.ID, err)
	}

	log.Debug().
		Uint32("window_id", uint32(w.ID)).
		Str("action", action).
		Msg("Window action performed")
	return nil
}
