// Package dedup tracks which live-stream occurrences have already produced an
// announcement. A Deduplicator is created once at startup and shared by every
// watcher; TryClaim is the single check-and-insert step that decides whether a
// detection may be announced.
//
// Keys are scoped per platform, so the same literal key on Twitch and YouTube
// never collide. A claimed key is never released: if posting fails afterwards
// the occurrence stays claimed (fail-closed).
package dedup

import (
	"container/list"
	"strings"
	"sync"
)

// Platform identifies the source of an occurrence key.
type Platform string

const (
	Twitch  Platform = "twitch"
	YouTube Platform = "youtube"
)

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithMaxEntries bounds each platform's record set. Once a platform holds n
// keys, claiming or seeding a new key evicts the oldest one. n <= 0 keeps the
// set unbounded.
func WithMaxEntries(n int) Option {
	return func(d *Deduplicator) {
		if n > 0 {
			d.max = n
		}
	}
}

// Deduplicator is safe for concurrent use.
type Deduplicator struct {
	mu      sync.Mutex
	max     int
	records map[Platform]*record
}

type record struct {
	keys  map[string]*list.Element
	order *list.List // oldest first
}

// New returns an empty Deduplicator.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{records: make(map[Platform]*record)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Seed marks keys as already announced. Blank keys are ignored and keys that
// are already present keep their position. Seed is idempotent.
func (d *Deduplicator) Seed(p Platform, keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.recordFor(p)
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := r.keys[k]; ok {
			continue
		}
		d.insert(r, k)
	}
}

// TryClaim reports whether the caller is the first to see key on platform p.
// On true the key is recorded and the caller must announce; on false the
// caller must suppress the announcement.
func (d *Deduplicator) TryClaim(p Platform, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.recordFor(p)
	if _, ok := r.keys[key]; ok {
		return false
	}
	d.insert(r, key)
	return true
}

// Contains reports whether key is recorded for platform p without claiming it.
func (d *Deduplicator) Contains(p Platform, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[p]
	if !ok {
		return false
	}
	_, ok = r.keys[key]
	return ok
}

// Len returns the number of keys recorded for platform p.
func (d *Deduplicator) Len(p Platform) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.records[p]; ok {
		return len(r.keys)
	}
	return 0
}

// recordFor must be called with d.mu held.
func (d *Deduplicator) recordFor(p Platform) *record {
	r, ok := d.records[p]
	if !ok {
		r = &record{keys: make(map[string]*list.Element), order: list.New()}
		d.records[p] = r
	}
	return r
}

// insert must be called with d.mu held.
func (d *Deduplicator) insert(r *record, key string) {
	r.keys[key] = r.order.PushBack(key)
	if d.max <= 0 {
		return
	}
	for r.order.Len() > d.max {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.keys, oldest.Value.(string))
	}
}
