package libdevcg

import (
	"github.com/pkg/errors"
)

// The structural index maps group identity to the per-owner instance slot.
// All index mutations happen under s.mu; reference counts are atomic so
// Release never needs the lock.

// Get looks up the instance for (g, key), taking a reference before the
// structural lock is dropped. Absence yields ErrNotFound, which is a
// legitimate state meaning default values apply. An invalidated key yields
// ErrAlreadyUnregistered; an unknown key ErrInvalidArgument.
func (s *Service) Get(gid GroupID, key OwnerKey) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e == nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "get: unknown key %d", key)
	}
	if !e.valid {
		return nil, errors.Wrapf(ErrAlreadyUnregistered, "get: key %d", key)
	}

	inst := s.groups[gid][key]
	if inst == nil {
		return nil, errors.Wrapf(ErrNotFound, "get: group %d key %d", gid, key)
	}
	inst.refs.Add(1)
	return inst, nil
}

// GetOrCreate returns the instance for (g, key), constructing it via the
// owner's Alloc on first use. Creation is linearizable with respect to
// concurrent GetOrCreate and removal on the same pair: exactly one instance
// is ever installed, racing callers observe the winner's. Alloc failure
// maps to ErrOutOfMemory and leaves no partial entry.
func (s *Service) GetOrCreate(g Group, key OwnerKey) (*Instance, error) {
	s.mu.Lock()
	e := s.entryLocked(key)
	if e == nil {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrInvalidArgument, "get-or-create: unknown key %d", key)
	}
	if !e.valid {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrAlreadyUnregistered, "get-or-create: key %d", key)
	}

	if inst := s.groups[g.ID][key]; inst != nil {
		inst.refs.Add(1)
		s.mu.Unlock()
		return inst, nil
	}

	payload, err := e.owner.Alloc()
	if err != nil {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrOutOfMemory, "get-or-create: alloc for group %d: %v", g.ID, err)
	}

	inst := &Instance{
		payload: payload,
		group:   g,
		owner:   e,
	}
	// One reference for structural membership, one for the caller.
	inst.refs.Store(2)
	inst.state.Store(stateLive)
	e.drain.Add(1)
	e.instances.Add(inst)

	slots := s.groups[g.ID]
	if slots == nil {
		slots = make(map[OwnerKey]*Instance)
		s.groups[g.ID] = slots
	}
	slots[key] = inst

	needWatch := !s.watched[g.ID]
	s.watched[g.ID] = true
	s.mu.Unlock()

	s.log.Debugf("created instance for group %d key %d", g.ID, key)

	if needWatch {
		if err := s.auth.WatchGroup(g, s.GroupDestroyed); err != nil {
			// The group vanished between creation and subscription;
			// reap it now rather than leak the instance.
			s.log.Debugf("watch on group %d failed, reaping: %v", g.ID, err)
			s.GroupDestroyed(g.ID)
		}
	}

	return inst, nil
}

// unlinkLocked removes inst from the structural index and marks it removed.
// The structural reference is NOT dropped here; callers release it after
// unlocking so that destructors never run under the structural lock.
// Unlinking an instance that is already gone is a no-op.
func (s *Service) unlinkLocked(inst *Instance) {
	if !inst.state.CompareAndSwap(stateLive, stateRemoved) {
		return
	}
	inst.owner.instances.Remove(inst)
	gid := inst.group.ID
	if slots := s.groups[gid]; slots != nil {
		delete(slots, inst.owner.id)
		if len(slots) == 0 {
			delete(s.groups, gid)
		}
	}
}
