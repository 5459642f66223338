package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same market from being submitted twice while an earlier
// submission is still in flight or was just made. It is safe for concurrent
// use.
type Dedup struct {
	seen map[string]time.Time // condition id -> claim time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that holds a claim for ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was claimed within the TTL. If not, the key
// is claimed and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if claimed, ok := d.seen[key]; ok && now.Sub(claimed) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Release drops the claim on key so a later attempt may proceed.
func (d *Dedup) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup removes expired claims.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

// Len returns the number of live claims.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
