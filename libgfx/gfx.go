// Package libgfx is a graphics-driver owner for the per-cgroup parameter
// service. It tracks three parameters per cgroup:
//
//   - priority-offset: added to the scheduling priority of GPU contexts
//     created by processes in the cgroup.
//   - display-boost: weight [0,100] applied when the cgroup's work feeds a
//     display surface.
//   - mem-budget: soft budget in bytes for the cgroup's device memory use.
//
// Parameters only provide starting points; per-context settings may still
// override them at runtime.
package libgfx

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devcg/devcg/libdevcg"
)

// Parameter ids, in the driver-owned range.
const (
	ParamPriorityOffset uint64 = 1
	ParamDisplayBoost   uint64 = 2
	ParamMemBudget      uint64 = 3
)

// Advertised ranges.
const (
	MinPriorityOffset = -1023
	MaxPriorityOffset = 1023
	MaxDisplayBoost   = 100
)

// Defaults when a cgroup has no explicit settings.
const (
	DefaultPriorityOffset = 0
	DefaultDisplayBoost   = 0
	DefaultMemBudget      = 0 // unlimited
)

// ParamNames maps CLI-facing parameter names to ids.
var ParamNames = map[string]uint64{
	"priority-offset": ParamPriorityOffset,
	"display-boost":   ParamDisplayBoost,
	"mem-budget":      ParamMemBudget,
}

// Params is the per-cgroup payload.
type Params struct {
	PriorityOffset int64
	DisplayBoost   int64
	MemBudget      int64
}

// Driver implements libdevcg.Owner.
type Driver struct {
	log *logrus.Entry
}

var _ libdevcg.Owner = (*Driver)(nil)

func New() *Driver {
	return &Driver{log: logrus.WithField("subsys", "gfx")}
}

// Alloc returns a zero-valued parameter block; zero values equal the
// documented defaults, so a freshly created instance reads the same as no
// instance at all.
func (d *Driver) Alloc() (libdevcg.Payload, error) {
	return &Params{
		PriorityOffset: DefaultPriorityOffset,
		DisplayBoost:   DefaultDisplayBoost,
		MemBudget:      DefaultMemBudget,
	}, nil
}

func (d *Driver) UpdateParam(p libdevcg.Payload, param uint64, val int64) error {
	params := p.(*Params)

	switch param {
	case ParamPriorityOffset:
		if val < MinPriorityOffset || val > MaxPriorityOffset {
			d.log.Debugf("priority offset %d outside [%d,%d]", val, MinPriorityOffset, MaxPriorityOffset)
			return errors.Wrapf(libdevcg.ErrInvalidArgument,
				"priority offset must be in range [%d,%d]", MinPriorityOffset, MaxPriorityOffset)
		}
		params.PriorityOffset = val

	case ParamDisplayBoost:
		if val < 0 || val > MaxDisplayBoost {
			return errors.Wrapf(libdevcg.ErrInvalidArgument,
				"display boost must be in range [0,%d]", MaxDisplayBoost)
		}
		params.DisplayBoost = val

	case ParamMemBudget:
		if val < 0 {
			return errors.Wrap(libdevcg.ErrInvalidArgument, "memory budget must be >= 0")
		}
		params.MemBudget = val

	default:
		return errors.Wrapf(libdevcg.ErrInvalidArgument, "unknown gfx parameter %d", param)
	}

	return nil
}

func (d *Driver) ReadParam(p libdevcg.Payload, param uint64) (int64, error) {
	params := p.(*Params)

	switch param {
	case ParamPriorityOffset:
		return params.PriorityOffset, nil
	case ParamDisplayBoost:
		return params.DisplayBoost, nil
	case ParamMemBudget:
		return params.MemBudget, nil
	}
	return 0, errors.Wrapf(libdevcg.ErrInvalidArgument, "unknown gfx parameter %d", param)
}

func (d *Driver) DefaultParam(param uint64) (int64, error) {
	switch param {
	case ParamPriorityOffset:
		return DefaultPriorityOffset, nil
	case ParamDisplayBoost:
		return DefaultDisplayBoost, nil
	case ParamMemBudget:
		return DefaultMemBudget, nil
	}
	return 0, errors.Wrapf(libdevcg.ErrInvalidArgument, "unknown gfx parameter %d", param)
}

// CurrentPriorityOffset is the submission fast path: the priority offset of
// the calling task's cgroup, or the default when none has been set. Safe to
// call once per scheduled work item and before the driver has registered.
func CurrentPriorityOffset(svc *libdevcg.Service, key libdevcg.OwnerKey) int64 {
	return svc.CurrentValue(key, func(p libdevcg.Payload) int64 {
		return p.(*Params).PriorityOffset
	}, DefaultPriorityOffset)
}

// CurrentDisplayBoost is the display path analogue of CurrentPriorityOffset.
func CurrentDisplayBoost(svc *libdevcg.Service, key libdevcg.OwnerKey) int64 {
	return svc.CurrentValue(key, func(p libdevcg.Payload) int64 {
		return p.(*Params).DisplayBoost
	}, DefaultDisplayBoost)
}
