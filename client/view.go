package client

import (
	"sort"
	"sync"

	"github.com/peplixcoin/cmeoi-sub001/models"
)

// View is one role's in-memory order list. Snapshots, stream events and
// poll results all go through the same merge, so applying a document twice
// leaves the list as applying it once did.
type View[T models.Document] struct {
	mu     sync.Mutex
	orders []T
	remove func(T) bool
	hooks  []func(n int)

	// gen counts merges; merged records the gen of each entry's last merge
	gen    uint64
	merged map[string]uint64
}

// NewView creates an empty view. remove decides when a document no longer
// belongs in the list; nil keeps everything.
func NewView[T models.Document](remove func(T) bool) *View[T] {
	if remove == nil {
		remove = func(T) bool { return false }
	}
	return &View[T]{remove: remove, merged: make(map[string]uint64)}
}

// OnChange registers fn to be called with the list length after every merge.
// Hooks run on the caller's goroutine, outside the view's lock.
func (v *View[T]) OnChange(fn func(n int)) {
	v.mu.Lock()
	v.hooks = append(v.hooks, fn)
	v.mu.Unlock()
}

// Seed merges a snapshot into the view. Events that arrived before the
// snapshot are kept; documents already present are replaced.
func (v *View[T]) Seed(docs []T) {
	v.mu.Lock()
	for _, doc := range docs {
		v.merge(doc)
	}
	n, hooks := len(v.orders), v.hooks
	v.mu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
}

// Apply merges one document:
//   - remove(doc) holds: drop any entry with the same order_id
//   - an entry with that order_id exists: replace it
//   - otherwise: prepend and re-sort by order_time, newest first
func (v *View[T]) Apply(doc T) {
	v.mu.Lock()
	v.merge(doc)
	n, hooks := len(v.orders), v.hooks
	v.mu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
}

// Mark returns the view's merge generation, to be passed to Sync
func (v *View[T]) Mark() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}

// Sync merges a complete snapshot requested after mark was taken. Entries the
// snapshot does not list have left its filter and are dropped, unless they
// were merged after mark (a stream event newer than the request).
func (v *View[T]) Sync(docs []T, mark uint64) {
	v.mu.Lock()
	listed := make(map[string]bool, len(docs))
	for _, doc := range docs {
		listed[doc.Header().OrderID] = true
		v.merge(doc)
	}

	kept := v.orders[:0]
	for _, o := range v.orders {
		id := o.Header().OrderID
		if listed[id] || v.merged[id] > mark {
			kept = append(kept, o)
			continue
		}
		delete(v.merged, id)
	}
	v.orders = kept
	n, hooks := len(v.orders), v.hooks
	v.mu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
}

func (v *View[T]) merge(doc T) {
	id := doc.Header().OrderID
	idx := v.indexOf(id)
	v.gen++

	if v.remove(doc) {
		if idx >= 0 {
			v.orders = append(v.orders[:idx], v.orders[idx+1:]...)
		}
		delete(v.merged, id)
		return
	}

	v.merged[id] = v.gen
	if idx >= 0 {
		v.orders[idx] = doc
		return
	}

	v.orders = append([]T{doc}, v.orders...)
	sort.SliceStable(v.orders, func(i, j int) bool {
		return v.orders[i].Header().OrderTime.After(v.orders[j].Header().OrderTime)
	})
}

func (v *View[T]) indexOf(orderID string) int {
	for i, o := range v.orders {
		if o.Header().OrderID == orderID {
			return i
		}
	}
	return -1
}

// Orders returns a copy of the current list
func (v *View[T]) Orders() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]T(nil), v.orders...)
}

// Len returns the number of orders in the view
func (v *View[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.orders)
}

// Completed is the removal rule of the dine-in views
func Completed[T models.Document](doc T) bool {
	return doc.Header().OrderStatus == models.StatusCompleted
}

// AssignedOrCompleted is the removal rule of the unassigned online view
func AssignedOrCompleted[T models.Document](doc T) bool {
	return Completed(doc) || doc.Assignee() != nil
}

// NotAssignedTo is the removal rule of a delivery agent's view
func NotAssignedTo[T models.Document](agentID string) func(T) bool {
	return func(doc T) bool {
		id := doc.Assignee()
		return id == nil || *id != agentID
	}
}
