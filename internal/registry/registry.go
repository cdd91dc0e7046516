// Package registry implements the pending-codec handoff structure
// (spec.md §4.3): the map from RequestId to a strong codec reference
// that keeps a codec alive while a provider callback is in flight and
// resolves the cancel/callback race by making "take" a one-shot
// operation.
package registry

import "sync"

// Ref is the strong reference type held by the registry. Any type
// satisfying this (e.g. *codec.Codec) can be registered; the
// registry itself is agnostic to what a codec is.
type Ref any

// Registry is a RequestId -> Ref map guarded by a mutex. A RequestId
// appears in the map for at most one codec at a time; any observer
// either takes it (receiving the strong reference) or finds it absent.
type Registry struct {
	mu   sync.Mutex
	byID map[uint32]Ref
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[uint32]Ref)}
}

// Retain inserts codec under id. The caller must hold its own
// reference separately; the registry's entry is an additional strong
// ref that pins the codec past a UI-thread drop of the caller's own
// reference, until Take removes it.
func (r *Registry) Retain(id uint32, ref Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = ref
}

// Take removes and returns the ref registered under id, atomically.
// The second return value is false if id was not present — meaning
// either it was never registered, or a concurrent Take (e.g. from a
// cancel racing the provider callback) already won.
func (r *Registry) Take(id uint32) (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	return ref, ok
}

// Len reports how many codecs are currently pending. Diagnostic only.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
