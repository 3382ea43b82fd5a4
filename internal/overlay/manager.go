// Package overlay tracks the screen strip occupied by the dock so windows
// can be kept out from under it.
package overlay

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// Settings is the externally visible overlay configuration.
type Settings struct {
	Enabled bool            `json:"enabled"`
	Height  int             `json:"height"`
	Display model.DisplayID `json:"display"`
}

// Manager holds the overlay settings
type Manager struct {
	mu       sync.RWMutex
	settings Settings
}

// NewManager creates a new overlay manager
func NewManager(s Settings) *Manager {
	if s.Height < 0 {
		s.Height = 0
	}
	return &Manager{settings: s}
}

// Settings returns the current settings
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Update replaces all settings at once
func (m *Manager) Update(s Settings) error {
	if s.Height < 0 {
		return fmt.Errorf("overlay height must not be negative, got %d", s.Height)
	}

	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()

	logger.WithComponent("overlay").Info().
		Bool("enabled", s.Enabled).
		Int("height", s.Height).
		Uint32("display", uint32(s.Display)).
		Msg("Overlay updated")
	return nil
}

// SetEnabled enables or disables the overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.Enabled = enabled
	logger.WithComponent("overlay").Info().Bool("enabled", enabled).Msg("Overlay toggled")
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Enabled
}

// SetHeight sets the strip height
func (m *Manager) SetHeight(height int) error {
	if height < 0 {
		return fmt.Errorf("overlay height must not be negative, got %d", height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.Height = height
	return nil
}

// Bounds returns the overlay rectangle for snap: a full-width strip of
// Height at the bottom of the target display's frame. A zero Display, or one
// not in the snapshot, targets the first display. ok is false when the
// overlay is disabled, has no height, or there is no display.
func (m *Manager) Bounds(snap *model.Snapshot) (model.Rect, bool) {
	s := m.Settings()
	if !s.Enabled || s.Height <= 0 || snap == nil {
		return model.Rect{}, false
	}

	disp, ok := snap.Displays[s.Display]
	if s.Display == 0 || !ok {
		disp, ok = snap.Primary()
	}
	if !ok {
		return model.Rect{}, false
	}

	f := disp.Frame
	h := s.Height
	if h > f.Height {
		h = f.Height
	}
	return model.Rect{X: f.X, Y: f.Bottom() - h, Width: f.Width, Height: h}, true
}
