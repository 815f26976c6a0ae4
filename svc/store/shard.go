package store

import (
	"sync"
	"time"

	"sealbin/pkg/domain"

	"github.com/cespare/xxhash/v2"
)

type shard struct {
	mu sync.RWMutex
	m  map[string]*domain.Entry
}

func newShard() *shard {
	return &shard{m: make(map[string]*domain.Entry)}
}

func shardIndex(id string, mask uint64) uint64 {
	return xxhash.Sum64String(id) & mask
}

func (sh *shard) get(id string) *domain.Entry {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.m[id]
}

// insert adds e unless a live entry already owns e.ID. An expired entry
// holding the id is displaced and returned so its capacity can be released.
func (sh *shard) insert(e *domain.Entry, now time.Time) (inserted bool, displaced *domain.Entry) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if old, ok := sh.m[e.ID]; ok {
		if !old.ExpiredAt(now) {
			return false, nil
		}
		displaced = old
	}
	sh.m[e.ID] = e
	return true, displaced
}

func (sh *shard) take(id string) *domain.Entry {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[id]
	if !ok {
		return nil
	}
	delete(sh.m, id)
	return e
}

// removeIfSame deletes e only if it still owns its id, so a lazy expiry
// never removes a newer entry that reused the id.
func (sh *shard) removeIfSame(e *domain.Entry) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[e.ID]; ok && cur == e {
		delete(sh.m, e.ID)
		return true
	}
	return false
}

func (sh *shard) sweep(now time.Time) (removed int, freed int64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for id, e := range sh.m {
		if e.ExpiredAt(now) {
			delete(sh.m, id)
			removed++
			freed += e.Size()
		}
	}
	return removed, freed
}

func (sh *shard) len() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.m)
}
