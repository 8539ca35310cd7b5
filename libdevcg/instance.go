package libdevcg

import (
	"sync"
	"sync/atomic"
)

// Instance lifecycle states. An instance starts live, is marked removed by
// exactly one of the two teardown triggers (group destruction or owner
// shutdown), and is destroyed when its last reference goes away. The
// removed-but-still-referenced window is a first-class state so that the
// race between teardown and in-flight readers stays observable.
const (
	stateLive int32 = iota
	stateRemoved
	stateDestroyed
)

// Instance is one owner's private payload for one group, plus the reference
// count that shares its ownership between the store's structural index and
// any in-flight caller.
type Instance struct {
	payload Payload
	group   Group
	owner   *ownerEntry

	// mu guards the payload: parameter updates take it exclusively,
	// fast-path readers take it shared. The store's structural lock is
	// never held across owner callbacks.
	mu sync.RWMutex

	refs  atomic.Int32
	state atomic.Int32
}

// Payload returns the owner-defined data. Callers must hold a reference and
// synchronize through Update/Read or the payload lock.
func (i *Instance) Payload() Payload { return i.payload }

// Group returns the group this instance is attached to.
func (i *Instance) Group() Group { return i.group }

// Update runs fn with the payload write lock held.
func (i *Instance) Update(fn func(Payload) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return fn(i.payload)
}

// Read runs fn with the payload read lock held.
func (i *Instance) Read(fn func(Payload) error) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return fn(i.payload)
}

// Release drops one reference. When the last reference of a removed
// instance goes away the owner's destructor runs, exactly once. Release is
// lock-free on the common path and must not be called while holding the
// store's structural lock.
func (i *Instance) Release() {
	if i.refs.Add(-1) == 0 {
		i.destroy()
	}
}

// destroy finalizes a removed instance. The CAS ensures the destructor runs
// exactly once even if both teardown triggers raced on this instance.
func (i *Instance) destroy() {
	if !i.state.CompareAndSwap(stateRemoved, stateDestroyed) {
		return
	}
	if f, ok := i.owner.owner.(Finalizer); ok {
		f.Free(i.payload)
	}
	i.owner.drain.Done()
}
