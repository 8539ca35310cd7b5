package libdevcg

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Error taxonomy for the parameter service. Callers are expected to test
// with errors.Is(); call sites wrap these with context via pkg/errors.
var (
	// ErrInvalidArgument covers bad flags, unknown or reserved parameter
	// ids, out-of-range values and handles on the wrong cgroup hierarchy.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied is returned when the actor holds neither the
	// admin capability, nor the device master role, nor write access on
	// the group's control surface.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates no instance exists for a (group, key) pair.
	// Absence is a legitimate state: it means default values apply.
	ErrNotFound = errors.New("not found")

	// ErrInvalidHandle indicates a group handle that does not resolve to
	// a group at all (e.g. a descriptor that is not a cgroup).
	ErrInvalidHandle = errors.New("invalid group handle")

	// ErrOutOfMemory indicates payload allocation failure during create.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrAlreadyUnregistered indicates an operation under an owner key
	// that has been invalidated by UnregisterOwner.
	ErrAlreadyUnregistered = errors.New("owner key already unregistered")

	// ErrResourceExhausted indicates the owner key namespace is full.
	ErrResourceExhausted = errors.New("owner key namespace exhausted")
)

// Errno maps a service error to the negative-errno domain used by the
// SETPARAM control surface. Unrecognized errors map to EIO.
func Errno(err error) unix.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArgument):
		return unix.EINVAL
	case errors.Is(err, ErrPermissionDenied):
		return unix.EPERM
	case errors.Is(err, ErrInvalidHandle):
		return unix.EBADF
	case errors.Is(err, ErrOutOfMemory):
		return unix.ENOMEM
	case errors.Is(err, ErrNotFound):
		return unix.ENOENT
	case errors.Is(err, ErrAlreadyUnregistered), errors.Is(err, ErrResourceExhausted):
		return unix.ENXIO
	}
	return unix.EIO
}
