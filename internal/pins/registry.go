// Package pins holds the user's pin overrides at window and application
// granularity and persists every change before reporting it.
package pins

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// ErrEmptyID is returned when pinning an empty application id.
var ErrEmptyID = errors.New("empty id")

// Registry is the in-memory pin set, mirrored to a Store on every mutation.
type Registry struct {
	mu      sync.RWMutex
	store   Store
	windows map[model.WindowID]struct{}
	apps    map[model.AppID]struct{}
}

// NewRegistry loads the persisted pin set from store.
func NewRegistry(store Store) (*Registry, error) {
	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load pins: %w", err)
	}

	r := &Registry{
		store:   store,
		windows: make(map[model.WindowID]struct{}, len(st.Windows)),
		apps:    make(map[model.AppID]struct{}, len(st.Apps)),
	}
	for _, id := range st.Windows {
		r.windows[id] = struct{}{}
	}
	for _, app := range st.Apps {
		r.apps[app] = struct{}{}
	}

	logger.WithComponent("pins").Info().
		Int("windows", len(r.windows)).
		Int("apps", len(r.apps)).
		Msg("Loaded pins")
	return r, nil
}

// IsPinned reports whether the window is pinned.
func (r *Registry) IsPinned(id model.WindowID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.windows[id]
	return ok
}

// TogglePin flips the pin state of id and returns the new state.
func (r *Registry) TogglePin(id model.WindowID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, pinned := r.windows[id]
	if err := r.setWindowLocked(id, !pinned); err != nil {
		return pinned, err
	}
	return !pinned, nil
}

// Pin pins id. Pinning a pinned window changes nothing.
func (r *Registry) Pin(id model.WindowID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setWindowLocked(id, true)
}

// Unpin unpins id.
func (r *Registry) Unpin(id model.WindowID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setWindowLocked(id, false)
}

// IsAppPinned reports whether the application is pinned.
func (r *Registry) IsAppPinned(app model.AppID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.apps[app]
	return ok
}

// ToggleApp flips the pin state of app and returns the new state.
func (r *Registry) ToggleApp(app model.AppID) (bool, error) {
	if app == "" {
		return false, ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, pinned := r.apps[app]
	if err := r.setAppLocked(app, !pinned); err != nil {
		return pinned, err
	}
	return !pinned, nil
}

// PinApp pins app.
func (r *Registry) PinApp(app model.AppID) error {
	if app == "" {
		return ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setAppLocked(app, true)
}

// UnpinApp unpins app.
func (r *Registry) UnpinApp(app model.AppID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setAppLocked(app, false)
}

// PinnedWindows returns the pinned window ids in ascending order.
func (r *Registry) PinnedWindows() []model.WindowID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedWindows(r.windows)
}

// PinnedApps returns the pinned application ids in ascending order.
func (r *Registry) PinnedApps() []model.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedApps(r.apps)
}

// State returns a copy of the pin set.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

func (r *Registry) stateLocked() State {
	return State{Windows: sortedWindows(r.windows), Apps: sortedApps(r.apps)}
}

// setWindowLocked applies the change, persists it and reverts on failure.
func (r *Registry) setWindowLocked(id model.WindowID, pinned bool) error {
	_, was := r.windows[id]
	if was == pinned {
		return nil
	}
	if pinned {
		r.windows[id] = struct{}{}
	} else {
		delete(r.windows, id)
	}

	if err := r.persistLocked(); err != nil {
		if was {
			r.windows[id] = struct{}{}
		} else {
			delete(r.windows, id)
		}
		return err
	}

	logger.WithComponent("pins").Debug().
		Uint32("window_id", uint32(id)).
		Bool("pinned", pinned).
		Msg("Window pin changed")
	return nil
}

func (r *Registry) setAppLocked(app model.AppID, pinned bool) error {
	_, was := r.apps[app]
	if was == pinned {
		return nil
	}
	if pinned {
		r.apps[app] = struct{}{}
	} else {
		delete(r.apps, app)
	}

	if err := r.persistLocked(); err != nil {
		if was {
			r.apps[app] = struct{}{}
		} else {
			delete(r.apps, app)
		}
		return err
	}

	logger.WithComponent("pins").Debug().
		Str("app_id", string(app)).
		Bool("pinned", pinned).
		Msg("App pin changed")
	return nil
}

func (r *Registry) persistLocked() error {
	if err := r.store.Save(r.stateLocked()); err != nil {
		logger.WithComponent("pins").Warn().Err(err).Msg("Failed to persist pins, change rolled back")
		return fmt.Errorf("failed to persist pins: %w", err)
	}
	return nil
}
