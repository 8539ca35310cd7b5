package libdevcg

// Payload is an owner-defined per-group data structure. The service never
// inspects it; owners get it back in their own callbacks and in fast-path
// field selectors.
type Payload interface{}

// Owner is the contract a driver implements to store per-group parameter
// data. All methods must be safe for concurrent use; UpdateParam runs with
// the instance's write lock held and ReadParam with its read lock, so an
// owner only needs its own synchronization for state outside the payload.
type Owner interface {
	// Alloc constructs a zero-valued payload for a group on first use.
	// It runs under the store's structural lock and must not block.
	Alloc() (Payload, error)

	// UpdateParam validates and applies a parameter write. Values outside
	// the owner's advertised range must return ErrInvalidArgument and
	// leave the payload unchanged.
	UpdateParam(p Payload, param uint64, val int64) error

	// ReadParam returns the current value of a parameter. Unrecognized
	// parameter ids must return ErrInvalidArgument.
	ReadParam(p Payload, param uint64) (int64, error)

	// DefaultParam returns the documented default for a parameter, used
	// when a group has no instance yet. Unrecognized parameter ids must
	// return ErrInvalidArgument.
	DefaultParam(param uint64) (int64, error)
}

// Finalizer is an optional extension of Owner for payloads that hold
// resources beyond plain memory. When implemented, Free runs exactly once
// per instance, after the instance has been removed and its last reference
// released. When not implemented the payload is simply dropped.
type Finalizer interface {
	Free(p Payload)
}

// Actor describes the caller of a parameter write for access control.
// Write access on the group's control surface is checked separately via
// the grouping authority.
type Actor struct {
	// Admin is set when the caller holds the administrative capability
	// (CAP_SYS_RESOURCE on Linux).
	Admin bool

	// Master is set when the caller holds the device's exclusive master
	// role.
	Master bool
}
