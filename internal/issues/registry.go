// Package issues keeps standing diagnostic notices: persistent,
// operator-dismissed records for misconfigurations that a one-shot log
// line would not surface well (bad tokens, missing permissions).
package issues

import (
	"sort"
	"sync"
	"time"
)

// Notice is one open diagnostic notice. Count tracks how often the
// same key was re-registered since it was first seen.
type Notice struct {
	Key       string    `json:"key"`
	Severity  string    `json:"severity"`
	Tag       string    `json:"tag"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
}

// Registry holds open notices, deduplicated by key. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	notices map[string]*Notice
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		notices: make(map[string]*Notice),
		now:     time.Now,
	}
}

// Register opens a notice, or refreshes it when the key is already
// open. Severity and tag of an existing notice are overwritten so the
// latest registration wins.
func (r *Registry) Register(key, severity, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.notices[key]; ok {
		existing.Severity = severity
		existing.Tag = tag
		existing.LastSeen = now
		existing.Count++
		return
	}

	r.notices[key] = &Notice{
		Key:       key,
		Severity:  severity,
		Tag:       tag,
		FirstSeen: now,
		LastSeen:  now,
		Count:     1,
	}
}

// Dismiss closes a notice. Dismissing an unknown key reports false.
func (r *Registry) Dismiss(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notices[key]; !ok {
		return false
	}
	delete(r.notices, key)
	return true
}

// List returns open notices ordered by key.
func (r *Registry) List() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notice, 0, len(r.notices))
	for _, notice := range r.notices {
		out = append(out, *notice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Open returns the number of open notices.
func (r *Registry) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}
