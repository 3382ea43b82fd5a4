package model

import (
	"fmt"
	"sort"
)

// ContainerID addresses one ordered list: a concrete display+space pair or
// the aggregate container.
type ContainerID struct {
	Display DisplayID `json:"display"`
	Space   SpaceID   `json:"space"`
}

// AggregateContainer is the synthetic union of all windows on all spaces.
var AggregateContainer = ContainerID{Space: AggregateSpaceID}

// IsAggregate reports whether c is the aggregate container.
func (c ContainerID) IsAggregate() bool { return c.Space == AggregateSpaceID }

func (c ContainerID) String() string {
	if c.IsAggregate() {
		return "aggregate"
	}
	return fmt.Sprintf("%d/%d", c.Display, c.Space)
}

// Display is a physical screen and the spaces it carries.
type Display struct {
	ID          DisplayID `json:"id"`
	Frame       Rect      `json:"frame"`
	Bounds      Rect      `json:"bounds"`
	Spaces      []SpaceID `json:"spaces"`
	ActiveSpace SpaceID   `json:"active_space"`
}

// Snapshot is one immutable observation of the window system, stored as
// flat maps keyed by id. A new snapshot replaces the previous one wholesale.
type Snapshot struct {
	Generation   uint64
	Full         bool
	Windows      map[WindowID]Window
	Spaces       map[ContainerID][]WindowID
	Displays     map[DisplayID]Display
	DisplayOrder []DisplayID
}

// NewSnapshot returns an empty, valid snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Windows:  make(map[WindowID]Window),
		Spaces:   make(map[ContainerID][]WindowID),
		Displays: make(map[DisplayID]Display),
	}
}

// AddDisplay registers a display and an empty container for each of its spaces.
func (s *Snapshot) AddDisplay(d Display) {
	if _, ok := s.Displays[d.ID]; !ok {
		s.DisplayOrder = append(s.DisplayOrder, d.ID)
	}
	s.Displays[d.ID] = d
	for _, sp := range d.Spaces {
		c := ContainerID{Display: d.ID, Space: sp}
		if _, ok := s.Spaces[c]; !ok {
			s.Spaces[c] = nil
		}
	}
}

// AddWindow records w and appends it to its container. A window id seen
// twice keeps its first record.
func (s *Snapshot) AddWindow(w Window) bool {
	if _, dup := s.Windows[w.ID]; dup {
		return false
	}
	s.Windows[w.ID] = w
	c := w.Container()
	s.Spaces[c] = append(s.Spaces[c], w.ID)
	return true
}

// Containers lists per-space containers in display order, then space order.
func (s *Snapshot) Containers() []ContainerID {
	rank := make(map[DisplayID]int, len(s.DisplayOrder))
	for i, id := range s.DisplayOrder {
		rank[id] = i
	}
	out := make([]ContainerID, 0, len(s.Spaces))
	for c := range s.Spaces {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i].Display]
		rj, jok := rank[out[j].Display]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		if out[i].Display != out[j].Display {
			return out[i].Display < out[j].Display
		}
		return out[i].Space < out[j].Space
	})
	return out
}

// WindowsIn returns the window ids of container c in enumeration order.
func (s *Snapshot) WindowsIn(c ContainerID) []WindowID {
	return append([]WindowID(nil), s.Spaces[c]...)
}

// LiveIDs returns the set of window ids present in the snapshot.
func (s *Snapshot) LiveIDs() map[WindowID]struct{} {
	live := make(map[WindowID]struct{}, len(s.Windows))
	for id := range s.Windows {
		live[id] = struct{}{}
	}
	return live
}

// Len is the number of windows.
func (s *Snapshot) Len() int { return len(s.Windows) }

// WindowsByApp returns the ids of open windows per application.
func (s *Snapshot) WindowsByApp() map[AppID][]WindowID {
	out := make(map[AppID][]WindowID)
	for _, c := range s.Containers() {
		for _, id := range s.Spaces[c] {
			w := s.Windows[id]
			out[w.AppID] = append(out[w.AppID], id)
		}
	}
	return out
}

// Primary returns the first display in enumeration order.
func (s *Snapshot) Primary() (Display, bool) {
	if len(s.DisplayOrder) == 0 {
		return Display{}, false
	}
	d, ok := s.Displays[s.DisplayOrder[0]]
	return d, ok
}
