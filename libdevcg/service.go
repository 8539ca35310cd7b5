package libdevcg

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/willf/bitset"
)

// Service owns the key registry and the instance store for one device. It
// is an explicit context object: nothing in this package is ambient state,
// so a device embeds a Service and tears it down with Shutdown when the
// device goes away.
type Service struct {
	auth Authority
	log  *logrus.Entry

	// mu is the structural lock. It protects the key registry and the
	// group index; it is shared across all owners and groups of this
	// service. Critical sections are pointer and reference bookkeeping
	// only, owner callbacks other than Alloc never run under it.
	mu      sync.Mutex
	keyIDs  *bitset.BitSet
	keys    [maxOwnerKeys]*ownerEntry
	groups  map[GroupID]map[OwnerKey]*Instance
	watched map[GroupID]bool
}

// New creates a parameter service backed by the given grouping authority.
func New(auth Authority) *Service {
	s := &Service{
		auth:    auth,
		log:     logrus.WithField("subsys", "devcg"),
		keyIDs:  bitset.New(maxOwnerKeys),
		groups:  make(map[GroupID]map[OwnerKey]*Instance),
		watched: make(map[GroupID]bool),
	}
	// Key id 0 stays reserved so the zero OwnerKey is never valid.
	s.keyIDs.Set(0)
	return s
}

// GroupDestroyed is the group-destruction trigger of the lifecycle reaper.
// The grouping authority invokes it (via WatchGroup subscriptions) after a
// group has been removed; it may also be called directly by embedders that
// drive their own notifications. Every owner's instance for the group is
// removed so subsequent lookups observe no resurrection; destructors run
// for instances with no outstanding references, the rest are destroyed on
// their last Release. Unknown group ids are a no-op: the group may never
// have had instances, or the owner-shutdown trigger got there first.
//
// The authority must not reuse the group identity until this returns.
func (s *Service) GroupDestroyed(gid GroupID) {
	s.mu.Lock()
	slots := s.groups[gid]
	victims := make([]*Instance, 0, len(slots))
	for _, inst := range slots {
		victims = append(victims, inst)
	}
	for _, inst := range victims {
		s.unlinkLocked(inst)
	}
	delete(s.watched, gid)
	s.mu.Unlock()

	for _, inst := range victims {
		inst.Release()
	}

	if len(victims) > 0 {
		s.log.Debugf("destroyed %d instance(s) for group %d", len(victims), gid)
	}
}

// Shutdown unregisters every remaining owner, draining their instances. It
// is meant for device teardown; individual drivers normally call
// UnregisterOwner themselves on unload.
func (s *Service) Shutdown() {
	s.mu.Lock()
	var keys []OwnerKey
	for _, e := range s.keys {
		if e != nil && e.valid {
			keys = append(keys, e.id)
		}
	}
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.UnregisterOwner(key); err != nil {
			s.log.Warnf("shutdown: unregister key %d: %v", key, err)
		}
	}
	s.log.Info("parameter service shut down")
}
