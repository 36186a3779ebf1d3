// Package registry implements the subscriber registry shared by the bus
// client, the feed aggregators and the milestone tracker.
//
// Subscriptions are grouped into buckets by key. Within a bucket entries
// keep registration order. Readers always receive copies, so callers can
// invoke callbacks without holding the registry lock.
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Entry is a single live subscription.
type Entry[F any] struct {
	ID       string
	Key      string
	Callback F
}

// Registry maps generated subscription ids to callbacks.
type Registry[F any] struct {
	mu      sync.Mutex
	buckets map[string][]Entry[F]
	ids     map[string]string // id -> key
}

// New creates an empty registry.
func New[F any]() *Registry[F] {
	return &Registry[F]{
		buckets: make(map[string][]Entry[F]),
		ids:     make(map[string]string),
	}
}

// Add registers callback under key and returns a new subscription id.
// It also reports whether key had no subscribers before this call.
func (r *Registry[F]) Add(key string, callback F) (id string, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = uuid.NewString()
	for {
		if _, taken := r.ids[id]; !taken {
			break
		}
		id = uuid.NewString()
	}

	first = len(r.buckets[key]) == 0
	r.buckets[key] = append(r.buckets[key], Entry[F]{ID: id, Key: key, Callback: callback})
	r.ids[id] = key
	return id, first
}

// Remove deletes the subscription with the given id. It returns the key
// the subscription was registered under and whether the bucket became
// empty. Removing an unknown id is a no-op and returns ok=false.
func (r *Registry[F]) Remove(id string) (key string, emptied bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok = r.ids[id]
	if !ok {
		return "", false, false
	}
	delete(r.ids, id)

	bucket := r.buckets[key]
	for i, e := range bucket {
		if e.ID != id {
			continue
		}
		next := make([]Entry[F], 0, len(bucket)-1)
		next = append(next, bucket[:i]...)
		next = append(next, bucket[i+1:]...)
		bucket = next
		break
	}

	if len(bucket) == 0 {
		delete(r.buckets, key)
		return key, true, true
	}
	r.buckets[key] = bucket
	return key, false, true
}

// Get returns a copy of the entries registered under key, in
// registration order.
func (r *Registry[F]) Get(key string) []Entry[F] {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[key]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Entry[F], len(bucket))
	copy(out, bucket)
	return out
}

// Lookup returns the entry for id.
func (r *Registry[F]) Lookup(id string) (Entry[F], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.ids[id]
	if !ok {
		return Entry[F]{}, false
	}
	for _, e := range r.buckets[key] {
		if e.ID == id {
			return e, true
		}
	}
	return Entry[F]{}, false
}

// Keys returns the keys that currently have at least one subscriber.
func (r *Registry[F]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live subscriptions.
func (r *Registry[F]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
