package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
)

const defaultStripes = 256

// KeyLocks serialises work on the same fingerprint without a global lock.
// Fingerprints are spread over a fixed set of mutexes; unrelated keys only
// contend when they land on the same stripe.
type KeyLocks struct {
	stripes []sync.Mutex
}

// NewKeyLocks returns a lock table with n stripes (defaultStripes if n <= 0).
func NewKeyLocks(n int) *KeyLocks {
	if n <= 0 {
		n = defaultStripes
	}
	return &KeyLocks{stripes: make([]sync.Mutex, n)}
}

func (k *KeyLocks) stripe(fp digest.Digest) *sync.Mutex {
	return &k.stripes[xxhash.Sum64String(fp.String())%uint64(len(k.stripes))]
}

// Lock acquires the lock for fp and returns its release function.
func (k *KeyLocks) Lock(fp digest.Digest) (unlock func()) {
	mu := k.stripe(fp)
	mu.Lock()
	return mu.Unlock
}
