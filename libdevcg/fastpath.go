package libdevcg

// CurrentValue resolves the calling task's current group and reads one
// payload field via the owner-supplied selector, returning def when the key
// was never registered, the key has been unregistered, the current group
// cannot be resolved, or the group has no instance. It is meant for hot
// paths (e.g. a scheduling-priority lookup per submitted work item): the
// only locks taken are the structural lock for the duration of the index
// lookup and the instance's read lock for the duration of the selector, so
// it never waits for another group's teardown or for an owner's update
// callback beyond its own instance.
func (s *Service) CurrentValue(key OwnerKey, selector func(Payload) int64, def int64) int64 {
	if key == 0 {
		return def
	}

	g, err := s.auth.CurrentGroup()
	if err != nil {
		return def
	}

	inst, err := s.Get(g.ID, key)
	if err != nil {
		return def
	}

	inst.mu.RLock()
	val := selector(inst.payload)
	inst.mu.RUnlock()
	inst.Release()

	return val
}
