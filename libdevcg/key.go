package libdevcg

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// maxOwnerKeys bounds the owner key namespace per service. Key id 0 is
// reserved as the invalid key so that a zero OwnerKey is never live.
const maxOwnerKeys = 64

// OwnerKey is the opaque token identifying a registered owner within a
// service. The zero value is invalid.
type OwnerKey uint32

// ownerEntry is the registry's record for one registered owner.
type ownerEntry struct {
	id    OwnerKey
	owner Owner
	valid bool

	// instances tracks the live instances created under this key, for
	// the owner-shutdown drain. Guarded by the service's structural
	// lock.
	instances mapset.Set[*Instance]

	// drain counts instances whose destructor has not run yet.
	// UnregisterOwner waits on it so that unregistration does not return
	// while any instance under the key is still referenced.
	drain sync.WaitGroup
}

// RegisterOwner allocates an owner key bound to the given owner. The owner's
// destructor (Finalizer, if implemented) will be invoked exactly once per
// instance created under the key.
func (s *Service) RegisterOwner(owner Owner) (OwnerKey, error) {
	if owner == nil {
		return 0, errors.Wrap(ErrInvalidArgument, "register owner: nil owner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.keyIDs.NextClear(1)
	if !ok || id >= maxOwnerKeys {
		return 0, errors.Wrapf(ErrResourceExhausted, "register owner: all %d keys in use", maxOwnerKeys-1)
	}
	s.keyIDs.Set(id)

	e := &ownerEntry{
		id:        OwnerKey(id),
		owner:     owner,
		valid:     true,
		instances: mapset.NewThreadUnsafeSet[*Instance](),
	}
	s.keys[id] = e

	s.log.Debugf("registered owner key %d", e.id)
	return e.id, nil
}

// UnregisterOwner invalidates key. Every instance created under the key, in
// any group, is removed and its destructor invoked exactly once; the call
// blocks until the last outstanding reference has been released. After it
// returns, operations under the key fail with ErrAlreadyUnregistered and
// the key id may be reused.
func (s *Service) UnregisterOwner(key OwnerKey) error {
	s.mu.Lock()
	e := s.entryLocked(key)
	if e == nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidArgument, "unregister owner: unknown key %d", key)
	}
	if !e.valid {
		s.mu.Unlock()
		return errors.Wrapf(ErrAlreadyUnregistered, "unregister owner: key %d", key)
	}
	e.valid = false

	victims := e.instances.ToSlice()
	for _, inst := range victims {
		s.unlinkLocked(inst)
	}
	s.mu.Unlock()

	// Structural references are dropped outside the lock; destructors of
	// unreferenced instances run here, the rest when their readers
	// release.
	for _, inst := range victims {
		inst.Release()
	}

	e.drain.Wait()

	s.mu.Lock()
	s.keys[e.id] = nil
	s.keyIDs.Clear(uint(e.id))
	s.mu.Unlock()

	s.log.Debugf("unregistered owner key %d (%d instances reaped)", key, len(victims))
	return nil
}

// entryLocked returns the registry entry for key, or nil. Caller holds the
// structural lock.
func (s *Service) entryLocked(key OwnerKey) *ownerEntry {
	if key == 0 || key >= maxOwnerKeys {
		return nil
	}
	return s.keys[key]
}
