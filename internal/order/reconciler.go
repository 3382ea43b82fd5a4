// Package order keeps the user-visible window order of every container
// stable across enumeration churn.
package order

import (
	"sort"
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
)

// record is the stored order of one container.
type record struct {
	order []model.WindowID
	index map[model.WindowID]int
	// present holds the ids seen by the latest Reconcile or Move.
	present map[model.WindowID]struct{}
	// absent counts consecutive full rebuilds an id was missing from.
	absent map[model.WindowID]int
}

func newRecord() *record {
	return &record{
		index:   make(map[model.WindowID]int),
		present: make(map[model.WindowID]struct{}),
		absent:  make(map[model.WindowID]int),
	}
}

func (r *record) append(id model.WindowID) {
	r.index[id] = len(r.order)
	r.order = append(r.order, id)
}

// replace resets order and index from ids, dropping duplicates (first wins).
func (r *record) replace(ids []model.WindowID) {
	r.order = r.order[:0:0]
	r.index = make(map[model.WindowID]int, len(ids))
	for _, id := range ids {
		if _, dup := r.index[id]; dup {
			continue
		}
		r.append(id)
	}
}

func (r *record) snapshot() []model.WindowID {
	return append([]model.WindowID(nil), r.order...)
}

func (r *record) markPresent(ids []model.WindowID) {
	r.present = make(map[model.WindowID]struct{}, len(ids))
	for _, id := range ids {
		r.present[id] = struct{}{}
	}
}

// Reconciler holds one order record per container plus an independent
// record for the aggregate container.
type Reconciler struct {
	mu        sync.Mutex
	spaces    map[model.ContainerID]*record
	aggregate *record
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		spaces:    make(map[model.ContainerID]*record),
		aggregate: newRecord(),
	}
}

// Reconcile merges incoming into the stored order of c: known ids keep their
// relative order, unseen ids are appended once in first-observed order, and
// nothing is removed because it is missing from one enumeration. The stored
// order is returned. The aggregate container is delegated to
// ReconcileAggregate.
func (r *Reconciler) Reconcile(c model.ContainerID, incoming []model.WindowID) []model.WindowID {
	if c.IsAggregate() {
		return r.ReconcileAggregate(incoming)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.recordLocked(c)
	added := 0
	for _, id := range incoming {
		if _, ok := rec.index[id]; !ok {
			rec.append(id)
			added++
		}
	}
	rec.markPresent(incoming)

	if added > 0 {
		logger.WithComponent("order").Debug().
			Stringer("container", c).
			Int("added", added).
			Int("size", len(rec.order)).
			Msg("Appended new windows")
	}
	return rec.snapshot()
}

// Arrange orders ids by their stored position in c. Ids that are unknown to
// c, or were missing from its latest reconciliation, sort last in their
// input order.
func (r *Reconciler) Arrange(c model.ContainerID, ids []model.WindowID) []model.WindowID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.aggregate
	if !c.IsAggregate() {
		rec = r.spaces[c]
	}

	out := append([]model.WindowID(nil), ids...)
	if rec == nil {
		return out
	}

	key := func(id model.WindowID) (int, bool) {
		if _, ok := rec.present[id]; !ok {
			return 0, false
		}
		i, ok := rec.index[id]
		return i, ok
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, iok := key(out[i])
		kj, jok := key(out[j])
		if iok != jok {
			return iok
		}
		return iok && ki < kj
	})
	return out
}

// Index returns the stored position of id in c.
func (r *Reconciler) Index(c model.ContainerID, id model.WindowID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.aggregate
	if !c.IsAggregate() {
		rec = r.spaces[c]
	}
	if rec == nil {
		return 0, false
	}
	i, ok := rec.index[id]
	return i, ok
}

// Order returns a copy of the stored order of c.
func (r *Reconciler) Order(c model.ContainerID) []model.WindowID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.IsAggregate() {
		return r.aggregate.snapshot()
	}
	if rec := r.spaces[c]; rec != nil {
		return rec.snapshot()
	}
	return nil
}

// Move replaces the order of c with newOrder. Duplicate ids keep their first
// position. The new order is authoritative until the next Move.
func (r *Reconciler) Move(c model.ContainerID, newOrder []model.WindowID) []model.WindowID {
	if c.IsAggregate() {
		return r.MoveAggregate(newOrder)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.recordLocked(c)
	rec.replace(newOrder)
	rec.markPresent(newOrder)
	rec.absent = make(map[model.WindowID]int)

	logger.WithComponent("order").Debug().
		Stringer("container", c).
		Int("size", len(rec.order)).
		Msg("Order moved")
	return rec.snapshot()
}

// ReconcileAggregate maintains the aggregate order against the union of live
// windows: an empty record is seeded from live, new ids are appended, and
// ids no longer live are dropped.
func (r *Reconciler) ReconcileAggregate(live []model.WindowID) []model.WindowID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.aggregate
	if len(rec.order) == 0 {
		rec.replace(live)
	} else {
		for _, id := range live {
			if _, ok := rec.index[id]; !ok {
				rec.append(id)
			}
		}
	}

	alive := make(map[model.WindowID]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}
	kept := make([]model.WindowID, 0, len(rec.order))
	for _, id := range rec.order {
		if _, ok := alive[id]; ok {
			kept = append(kept, id)
		}
	}
	if len(kept) != len(rec.order) {
		logger.WithComponent("order").Debug().
			Int("dropped", len(rec.order)-len(kept)).
			Msg("Pruned aggregate order")
		rec.replace(kept)
	}
	rec.markPresent(live)
	return rec.snapshot()
}

// MoveAggregate replaces the aggregate order. Per-space records are untouched.
func (r *Reconciler) MoveAggregate(newOrder []model.WindowID) []model.WindowID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.aggregate.replace(newOrder)
	r.aggregate.markPresent(newOrder)
	return r.aggregate.snapshot()
}

// Prune is run after a full rebuild with the ids present in c. Ids missing
// from threshold consecutive full rebuilds are dropped from the stored
// order; a sighting resets the count. A zero threshold never prunes.
func (r *Reconciler) Prune(c model.ContainerID, present []model.WindowID, threshold int) []model.WindowID {
	if threshold <= 0 || c.IsAggregate() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.spaces[c]
	if rec == nil {
		return nil
	}

	seen := make(map[model.WindowID]struct{}, len(present))
	for _, id := range present {
		seen[id] = struct{}{}
	}

	var dropped []model.WindowID
	kept := make([]model.WindowID, 0, len(rec.order))
	for _, id := range rec.order {
		if _, ok := seen[id]; ok {
			delete(rec.absent, id)
			kept = append(kept, id)
			continue
		}
		rec.absent[id]++
		if rec.absent[id] >= threshold {
			delete(rec.absent, id)
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
	}

	if len(dropped) > 0 {
		rec.replace(kept)
		if len(kept) == 0 {
			delete(r.spaces, c)
		}
		logger.WithComponent("order").Debug().
			Stringer("container", c).
			Int("dropped", len(dropped)).
			Msg("Pruned stale windows")
	}
	return dropped
}

// Containers lists the per-space containers with a stored order.
func (r *Reconciler) Containers() []model.ContainerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ContainerID, 0, len(r.spaces))
	for c := range r.spaces {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Display != out[j].Display {
			return out[i].Display < out[j].Display
		}
		return out[i].Space < out[j].Space
	})
	return out
}

func (r *Reconciler) recordLocked(c model.ContainerID) *record {
	rec, ok := r.spaces[c]
	if !ok {
		rec = newRecord()
		r.spaces[c] = rec
	}
	return rec
}
