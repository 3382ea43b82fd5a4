package model

// ContainerView is one fully ordered container as shown to the presentation layer.
type ContainerView struct {
	ID      ContainerID `json:"id"`
	Windows []Window    `json:"windows"`
	Groups  []AppGroup  `json:"groups"`
}

// IDs returns the window ids in display order.
func (cv ContainerView) IDs() []WindowID {
	ids := make([]WindowID, len(cv.Windows))
	for i, w := range cv.Windows {
		ids[i] = w.ID
	}
	return ids
}

// AppPin is a pinned application and its currently open windows. Ghost is
// set when no window of the app is open.
type AppPin struct {
	AppID   AppID      `json:"app_id"`
	Windows []WindowID `json:"windows"`
	Ghost   bool       `json:"ghost"`
}

// View is what one pipeline cycle publishes.
type View struct {
	Generation uint64          `json:"generation"`
	Containers []ContainerView `json:"containers"`
	Aggregate  ContainerView   `json:"aggregate"`
	Active     WindowID        `json:"active"`
	Recent     []WindowID      `json:"recent"`
	PinnedApps []AppPin        `json:"pinned_apps"`
}

// Container returns the view of c, including the aggregate.
func (v View) Container(c ContainerID) (ContainerView, bool) {
	if c.IsAggregate() {
		return v.Aggregate, true
	}
	for _, cv := range v.Containers {
		if cv.ID == c {
			return cv, true
		}
	}
	return ContainerView{}, false
}

// AppGroup is the windows of one application within a container.
type AppGroup struct {
	AppID   AppID      `json:"app_id"`
	Windows []WindowID `json:"windows"`
	// Visible are the members a taskbar shows individually: pinned windows
	// first, then the most recently active unpinned one.
	Visible []WindowID `json:"visible"`
}

// GroupByApp groups windows by application, keeping the container order of
// each group's first window. recent is most-recent-first.
func GroupByApp(windows []Window, recent []WindowID) []AppGroup {
	rank := make(map[WindowID]int, len(recent))
	for i, id := range recent {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}

	index := make(map[AppID]int)
	var groups []AppGroup
	pinned := make(map[WindowID]bool)
	for _, w := range windows {
		i, ok := index[w.AppID]
		if !ok {
			i = len(groups)
			index[w.AppID] = i
			groups = append(groups, AppGroup{AppID: w.AppID})
		}
		groups[i].Windows = append(groups[i].Windows, w.ID)
		if w.Pinned {
			pinned[w.ID] = true
			groups[i].Visible = append(groups[i].Visible, w.ID)
		}
	}

	for i := range groups {
		best, bestRank := WindowID(0), -1
		for _, id := range groups[i].Windows {
			if pinned[id] {
				continue
			}
			if r, ok := rank[id]; ok && (bestRank < 0 || r < bestRank) {
				best, bestRank = id, r
			}
		}
		if bestRank >= 0 {
			groups[i].Visible = append(groups[i].Visible, best)
		}
	}
	return groups
}
