// Package libdevcg lets independent subsystems (a device framework core and
// its drivers, called "owners") attach private, typed data to externally
// managed process groups (cgroups) and retrieve it from high-frequency call
// paths such as work submission.
//
// Groups are created and destroyed by an external authority; owners only
// observe destruction asynchronously. The package guarantees that for every
// (group, owner-key) pair at most one instance of the owner's payload exists,
// that an instance is destroyed exactly once no matter whether its group was
// torn down or its owner unregistered first, and that in-flight readers keep
// an instance alive until they release it.
//
// An owner registers once per device via Service.RegisterOwner and receives
// an opaque OwnerKey. Parameters are set on a group through the SETPARAM
// entry point (Service.SetParam), which lazily creates the owner's instance
// for that group on first use. Hot paths read a single payload field through
// Service.CurrentValue, which resolves the calling task's current group and
// falls back to a default when no instance exists.
package libdevcg
