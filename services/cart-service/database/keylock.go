package database

import (
	"hash/fnv"
	"sync"
)

// KeyLock is a striped mutex: one key always maps to the same stripe, so operations on one
// user key are serialized while unrelated keys mostly proceed in parallel.
type KeyLock struct {
	stripes []sync.Mutex
}

func NewKeyLock(stripes int) *KeyLock {
	if stripes <= 0 {
		stripes = 256
	}
	return &KeyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for key and returns its unlock func.
func (l *KeyLock) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
