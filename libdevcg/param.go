package libdevcg

import (
	"github.com/pkg/errors"
)

// MaxDriverParam is the top of the parameter id range owners may use.
// Ids above it are reserved for the framework core; today there are no
// core-managed parameters, so setting one is simply rejected.
const MaxDriverParam uint64 = 0xFFFFFF

// SetParamRequest is the wire form of the SETPARAM control call.
type SetParamRequest struct {
	// GroupFD identifies the target group; it must resolve to a group on
	// the default (v2) hierarchy.
	GroupFD int

	// Flags is reserved and must be zero.
	Flags uint32

	Param uint64
	Value int64
}

// SetParam validates and applies a parameter write for an owner. The
// owner's instance for the target group is created on first use and is
// retained even if the owner rejects this particular value, so later
// attempts do not pay creation again.
func (s *Service) SetParam(key OwnerKey, actor Actor, req SetParamRequest) error {
	// Reject nonzero flags rather than ignoring them, so the field stays
	// usable for future extension.
	if req.Flags != 0 {
		return errors.Wrapf(ErrInvalidArgument, "setparam: reserved flags 0x%x must be zero", req.Flags)
	}

	if req.Param > MaxDriverParam {
		return errors.Wrapf(ErrInvalidArgument, "setparam: param 0x%x is in the reserved range", req.Param)
	}

	g, err := s.auth.ResolveGroup(req.GroupFD)
	if err != nil {
		return errors.Wrap(err, "setparam")
	}

	// Any one of: admin capability, device master role, or write access
	// granted on the group's control surface.
	if !actor.Admin && !actor.Master && !s.auth.CanWrite(g) {
		return errors.Wrapf(ErrPermissionDenied, "setparam: group %d", g.ID)
	}

	inst, err := s.GetOrCreate(g, key)
	if err != nil {
		return errors.Wrap(err, "setparam")
	}
	defer inst.Release()

	owner := inst.owner.owner
	if err := inst.Update(func(p Payload) error {
		return owner.UpdateParam(p, req.Param, req.Value)
	}); err != nil {
		s.log.Debugf("setparam: group %d key %d param 0x%x rejected: %v", g.ID, key, req.Param, err)
		return err
	}

	s.log.Debugf("setparam: group %d key %d param 0x%x = %d", g.ID, key, req.Param, req.Value)
	return nil
}

// GetParam reads a parameter for the group identified by groupFD. Read
// access control, if any, belongs to the grouping authority, not this
// service. When the group has no instance the owner's documented default is
// returned, unless the parameter id itself is unrecognized.
func (s *Service) GetParam(key OwnerKey, groupFD int, param uint64) (int64, error) {
	if param > MaxDriverParam {
		return 0, errors.Wrapf(ErrInvalidArgument, "getparam: param 0x%x is in the reserved range", param)
	}

	g, err := s.auth.ResolveGroup(groupFD)
	if err != nil {
		return 0, errors.Wrap(err, "getparam")
	}

	inst, err := s.Get(g.ID, key)
	if errors.Is(err, ErrNotFound) {
		s.mu.Lock()
		e := s.entryLocked(key)
		s.mu.Unlock()
		if e == nil {
			return 0, errors.Wrapf(ErrInvalidArgument, "getparam: unknown key %d", key)
		}
		return e.owner.DefaultParam(param)
	}
	if err != nil {
		return 0, errors.Wrap(err, "getparam")
	}
	defer inst.Release()

	var val int64
	owner := inst.owner.owner
	err = inst.Read(func(p Payload) error {
		var rerr error
		val, rerr = owner.ReadParam(p, param)
		return rerr
	})
	return val, err
}
