package asset

import "fmt"

// Registry is an immutable, insertion-ordered set of supported assets. E is
// whatever the owner attaches to each asset (token handle, price source).
// Iteration order is the registration order, which keeps aggregate
// valuations deterministic.
type Registry[E any] struct {
	order   []ID
	entries map[ID]E
}

// NewRegistry builds a registry from parallel id/entry slices. The slices
// must be the same non-zero length and ids must be unique.
func NewRegistry[E any](ids []ID, entries []E) (*Registry[E], error) {
	if len(ids) == 0 {
		return nil, ErrNoAssets
	}
	if len(ids) != len(entries) {
		return nil, fmt.Errorf("%w: %d assets, %d entries", ErrLenMismatch, len(ids), len(entries))
	}
	r := &Registry[E]{
		order:   make([]ID, 0, len(ids)),
		entries: make(map[ID]E, len(ids)),
	}
	for i, id := range ids {
		parsed, err := ParseID(string(id))
		if err != nil {
			return nil, err
		}
		if _, dup := r.entries[parsed]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, parsed)
		}
		r.order = append(r.order, parsed)
		r.entries[parsed] = entries[i]
	}
	return r, nil
}

// IDs returns the registered asset IDs in registration order.
func (r *Registry[E]) IDs() []ID {
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the entry for id.
func (r *Registry[E]) Lookup(id ID) (E, error) {
	e, ok := r.entries[id]
	if !ok {
		var zero E
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Len returns the number of registered assets.
func (r *Registry[E]) Len() int { return len(r.order) }

// Each calls fn for every asset in registration order, stopping at the
// first error.
func (r *Registry[E]) Each(fn func(ID, E) error) error {
	for _, id := range r.order {
		if err := fn(id, r.entries[id]); err != nil {
			return err
		}
	}
	return nil
}
