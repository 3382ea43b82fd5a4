package pipeline

import (
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// union lists every live window once: display order, then space order,
// then the arranged order within each space.
func (d *Driver) union() []model.WindowID {
	var out []model.WindowID
	for _, c := range d.snap.Containers() {
		out = append(out, d.deps.Reconciler.Arrange(c, d.snap.WindowsIn(c))...)
	}
	return out
}

// buildView assembles the published view from the current snapshot. Pin
// flags are read from the registry so pin intents show up without a rebuild.
func (d *Driver) buildView() model.View {
	snap := d.snap
	recon := d.deps.Reconciler

	lookup := func(id model.WindowID) model.Window {
		w := snap.Windows[id]
		if d.deps.Pins != nil {
			w.Pinned = d.deps.Pins.IsPinned(id)
		}
		return w
	}

	view := model.View{
		Generation: snap.Generation,
		Active:     d.active,
		Recent:     append([]model.WindowID(nil), d.recent...),
	}

	var union []model.WindowID
	for _, c := range snap.Containers() {
		ids := recon.Arrange(c, snap.WindowsIn(c))
		union = append(union, ids...)

		cv := model.ContainerView{ID: c, Windows: make([]model.Window, 0, len(ids))}
		for _, id := range ids {
			cv.Windows = append(cv.Windows, lookup(id))
		}
		cv.Groups = model.GroupByApp(cv.Windows, d.recent)
		view.Containers = append(view.Containers, cv)
	}

	aggregate := recon.Arrange(model.AggregateContainer, union)
	view.Aggregate = model.ContainerView{
		ID:      model.AggregateContainer,
		Windows: make([]model.Window, 0, len(aggregate)),
	}
	byApp := make(map[model.AppID][]model.WindowID)
	for _, id := range aggregate {
		w := lookup(id)
		view.Aggregate.Windows = append(view.Aggregate.Windows, w)
		byApp[w.AppID] = append(byApp[w.AppID], id)
	}
	view.Aggregate.Groups = model.GroupByApp(view.Aggregate.Windows, d.recent)

	if d.deps.Pins != nil {
		for _, app := range d.deps.Pins.PinnedApps() {
			windows := byApp[app]
			view.PinnedApps = append(view.PinnedApps, model.AppPin{
				AppID:   app,
				Windows: append([]model.WindowID{}, windows...),
				Ghost:   len(windows) == 0,
			})
		}
	}
	return view
}
