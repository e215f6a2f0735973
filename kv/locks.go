package kv

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// keyLocks serializes operations on the same key inside one process. Keys
// share a fixed set of mutexes chosen by hash, so unrelated keys may
// occasionally contend but memory stays bounded.
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

func (l *keyLocks) lock(key string) (unlock func()) {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
