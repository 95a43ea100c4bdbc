// Package dedup tracks product identifiers already emitted during a run.
package dedup

import "sync"

// claimed is the rank given to identifiers taken through Mark or Claim. It
// outranks every discovery rank passed to Offer.
const claimed = -1

// Registry is a run-scoped set of identifiers. It never evicts. All methods
// are safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	seen map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]int)}
}

// Seen reports whether id has been marked.
func (r *Registry) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// Mark records id as emitted.
func (r *Registry) Mark(id string) {
	r.mu.Lock()
	r.seen[id] = claimed
	r.mu.Unlock()
}

// Claim marks id and reports whether it was previously unseen. The check and
// the mark happen under one lock, so at most one caller wins per id.
func (r *Registry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = claimed
	return true
}

// Offer settles id by discovery rank: the lowest rank holds it regardless of
// the order in which offers arrive. It reports whether rank now holds id and,
// when rank took id from an earlier offer, the displaced rank.
func (r *Registry) Offer(id string, rank int) (held bool, displaced int, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	holder, ok := r.seen[id]
	switch {
	case !ok:
		r.seen[id] = rank
		return true, 0, false
	case rank < holder:
		r.seen[id] = rank
		return true, holder, true
	default:
		return false, 0, false
	}
}

// Len returns the number of marked identifiers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
