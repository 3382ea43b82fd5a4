package commands

import (
	"fmt"

	"github.com/bryanchriswhite/taskdock/internal/config"
	"github.com/bryanchriswhite/taskdock/internal/geometry"
	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/notifier"
	"github.com/bryanchriswhite/taskdock/internal/order"
	"github.com/bryanchriswhite/taskdock/internal/overlay"
	"github.com/bryanchriswhite/taskdock/internal/pins"
	"github.com/bryanchriswhite/taskdock/internal/pipeline"
	"github.com/bryanchriswhite/taskdock/internal/publish"
	"github.com/bryanchriswhite/taskdock/internal/snapshot"
	"github.com/bryanchriswhite/taskdock/internal/window"
)

// daemon is the wired pipeline shared by serve and list.
type daemon struct {
	backend  window.Backend
	kwin     *window.KWinSignals
	store    pins.Store
	pins     *pins.Registry
	overlay  *overlay.Manager
	notifier *notifier.Notifier
	hub      *publish.Hub
	driver   *pipeline.Driver
}

func openPins(cfg *config.Config) (pins.Store, *pins.Registry, error) {
	path, err := cfg.PinsPath()
	if err != nil {
		return nil, nil, err
	}
	store, err := pins.Open(cfg.Pins.Backend, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open pin store: %w", err)
	}
	reg, err := pins.NewRegistry(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, reg, nil
}

// daemonMode selects whether the pipeline may change window geometry.
type daemonMode int

const (
	// modeServe runs the full pipeline including the geometry guard.
	modeServe daemonMode = iota
	// modeReadOnly observes windows without resizing any of them.
	modeReadOnly
)

// pipelineDeps wires the pipeline components around a backend.
func pipelineDeps(backend window.Backend, reg *pins.Registry, ov *overlay.Manager, events <-chan notifier.Event, pub pipeline.Publisher, mode daemonMode) pipeline.Deps {
	deps := pipeline.Deps{
		Builder:    snapshot.NewBuilder(backend, reg),
		Reconciler: order.NewReconciler(),
		Pins:       reg,
		Overlay:    ov,
		Actions:    window.NewManager(backend),
		Events:     events,
		Publisher:  pub,
	}
	if mode == modeServe {
		deps.Guard = geometry.NewGuard(backend)
	}
	return deps
}

func newDaemon(cfg *config.Config, mode daemonMode) (*daemon, error) {
	backend, err := window.NewX11Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}

	store, reg, err := openPins(cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	var events window.Events = backend
	var kwin *window.KWinSignals
	if cfg.Notifier.KWinSignals {
		if kwin, err = window.ConnectKWinSignals(); err != nil {
			logger.WithComponent("daemon").Warn().Err(err).Msg("KWin signals unavailable, using X11 events only")
			kwin = nil
		} else {
			events = window.JoinEvents(backend, kwin)
		}
	}

	rt := &daemon{
		backend: backend,
		kwin:    kwin,
		store:   store,
		pins:    reg,
		overlay: overlay.NewManager(overlay.Settings{
			Enabled: cfg.Overlay.Enabled,
			Height:  cfg.Overlay.Height,
			Display: model.DisplayID(cfg.Overlay.Display),
		}),
		notifier: notifier.New(events, backend, notifier.Options{
			FocusPollInterval: cfg.Notifier.FocusPollInterval,
		}),
		hub: publish.NewHub(),
	}

	deps := pipelineDeps(backend, reg, rt.overlay, rt.notifier.Events(), rt.hub, mode)
	rt.driver = pipeline.New(deps, pipeline.Config{
		RefreshInterval: cfg.Pipeline.RefreshInterval,
		Debounce:        cfg.Notifier.Debounce,
		PruneAfter:      cfg.Pipeline.PruneAfter,
		RecentLimit:     cfg.Pipeline.RecentLimit,
	})
	return rt, nil
}

func (rt *daemon) Close() {
	rt.notifier.Stop()
	if err := rt.store.Close(); err != nil {
		fmt.Printf("Warning: failed to close pin store: %v\n", err)
	}
	if rt.kwin != nil {
		rt.kwin.Close()
	}
	rt.backend.Close()
}
