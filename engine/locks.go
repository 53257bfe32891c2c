package engine

import "sync"

// keyedLocks serializes engine transitions per instance id. Lock entries are
// never removed; the count is bounded by the active instance population of
// one node.
type keyedLocks struct {
	locks sync.Map
}

func (kl *keyedLocks) Lock(key string) func() {
	v, _ := kl.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
