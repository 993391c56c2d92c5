// lockmap is a sharded lock map.
//
// The API is as if LockMap consisted of a lock for every possible uint64
// (block numbers for the buffer cache, inode numbers for directories);
// LockMap.Acquire(a) acquires the lock associated with a and
// LockMap.Release(a) release it.
//
// The implementation doesn't actually maintain all of these locks; it
// instead maintains a fixed collection of shards so that shard i is
// responsible for maintaining the lock state of all a such that a % NSHARD = i.
// Acquiring a lock requires synchronizing with any threads accessing the same
// shard.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	mu := new(sync.Mutex)
	return &lockShard{
		mu:    mu,
		state: make(map[uint64]*lockState),
	}
}

func (lmap *lockShard) acquire(addr uint64) {
	lmap.mu.Lock()
	for {
		state, ok := lmap.state[addr]
		if !ok {
			state = &lockState{cond: sync.NewCond(lmap.mu)}
			lmap.state[addr] = state
		}
		if !state.held {
			state.held = true
			break
		}
		state.waiters += 1
		state.cond.Wait()
		// the state survives while it has waiters
		state.waiters -= 1
	}
	lmap.mu.Unlock()
}

func (lmap *lockShard) release(addr uint64) {
	lmap.mu.Lock()
	state, ok := lmap.state[addr]
	if !ok || !state.held {
		lmap.mu.Unlock()
		panic("lockmap: release of unheld lock")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(lmap.state, addr)
	}
	lmap.mu.Unlock()
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(flataddr uint64) {
	lmap.shards[flataddr%NSHARD].acquire(flataddr)
}

func (lmap *LockMap) Release(flataddr uint64) {
	lmap.shards[flataddr%NSHARD].release(flataddr)
}

// Do runs f holding the lock for flataddr.
func (lmap *LockMap) Do(flataddr uint64, f func() error) error {
	lmap.Acquire(flataddr)
	defer lmap.Release(flataddr)
	return f()
}
