package libdevcg

import (
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func TestSetParamRoundTrip(t *testing.T) {
	svc, _, _, key, _ := newTestService(t)

	// Owner advertises range [-10,10] for param 1.
	req := SetParamRequest{GroupFD: 3, Param: 1, Value: 5}
	if err := svc.SetParam(key, Actor{}, req); err != nil {
		t.Fatalf("SetParam(5) failed: %s", err)
	}

	got, err := svc.GetParam(key, 3, 1)
	if err != nil {
		t.Fatalf("GetParam failed: %s", err)
	}
	if got != 5 {
		t.Errorf("GetParam: got %d, want 5", got)
	}

	// Out-of-range write fails and leaves the prior value unchanged.
	req.Value = 99
	if err := svc.SetParam(key, Actor{}, req); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SetParam(99): got %v, want ErrInvalidArgument", err)
	}

	got, err = svc.GetParam(key, 3, 1)
	if err != nil {
		t.Fatalf("GetParam failed: %s", err)
	}
	if got != 5 {
		t.Errorf("GetParam after rejected write: got %d, want 5", got)
	}
}

func TestSetParamNonzeroFlags(t *testing.T) {
	svc, _, _, key, _ := newTestService(t)

	// Nonzero flags are rejected regardless of the other fields, even
	// with a handle that would not resolve.
	for _, req := range []SetParamRequest{
		{GroupFD: 3, Flags: 1, Param: 1, Value: 5},
		{GroupFD: 999, Flags: 0xffffffff, Param: 1, Value: 5},
	} {
		if err := svc.SetParam(key, Actor{Admin: true}, req); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SetParam(flags=0x%x): got %v, want ErrInvalidArgument", req.Flags, err)
		}
	}
}

func TestSetParamReservedRange(t *testing.T) {
	svc, _, _, key, _ := newTestService(t)

	req := SetParamRequest{GroupFD: 3, Param: MaxDriverParam + 1, Value: 1}
	if err := svc.SetParam(key, Actor{Admin: true}, req); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetParam in reserved range: got %v, want ErrInvalidArgument", err)
	}
}

func TestSetParamBadHandles(t *testing.T) {
	svc, auth, _, key, _ := newTestService(t)
	auth.v1[7] = true

	req := SetParamRequest{GroupFD: 999, Param: 1, Value: 5}
	if err := svc.SetParam(key, Actor{}, req); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("SetParam on unresolvable handle: got %v, want ErrInvalidHandle", err)
	}

	req.GroupFD = 7
	if err := svc.SetParam(key, Actor{}, req); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetParam on wrong hierarchy: got %v, want ErrInvalidArgument", err)
	}
}

func TestSetParamAccessControl(t *testing.T) {
	svc, auth, _, key, _ := newTestService(t)
	auth.writable = false

	req := SetParamRequest{GroupFD: 3, Param: 1, Value: 5}

	if err := svc.SetParam(key, Actor{}, req); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("SetParam without credentials: got %v, want ErrPermissionDenied", err)
	}

	// Any one of admin capability, master role, or control-surface write
	// access suffices.
	if err := svc.SetParam(key, Actor{Admin: true}, req); err != nil {
		t.Errorf("SetParam as admin failed: %s", err)
	}
	if err := svc.SetParam(key, Actor{Master: true}, req); err != nil {
		t.Errorf("SetParam as master failed: %s", err)
	}

	auth.writable = true
	if err := svc.SetParam(key, Actor{}, req); err != nil {
		t.Errorf("SetParam with write access failed: %s", err)
	}
}

func TestSetParamRetainsInstanceOnRejectedValue(t *testing.T) {
	svc, _, owner, key, g := newTestService(t)

	// Creation and semantic validation are independent failure domains:
	// a rejected first write still leaves the instance in place, so the
	// next attempt does not pay creation again.
	req := SetParamRequest{GroupFD: 3, Param: 1, Value: 99}
	if err := svc.SetParam(key, Actor{}, req); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SetParam(99): got %v, want ErrInvalidArgument", err)
	}

	inst, err := svc.Get(g.ID, key)
	if err != nil {
		t.Fatalf("Get after rejected write: %s (instance not retained)", err)
	}
	inst.Release()

	req.Value = 5
	if err := svc.SetParam(key, Actor{}, req); err != nil {
		t.Fatalf("SetParam(5) failed: %s", err)
	}
	if n := owner.allocs.Load(); n != 1 {
		t.Errorf("owner alloc ran %d times, want 1", n)
	}
}

func TestGetParamDefault(t *testing.T) {
	svc, _, _, key, _ := newTestService(t)

	// A group with no instance reports the owner's documented default,
	// not an error.
	got, err := svc.GetParam(key, 3, 1)
	if err != nil {
		t.Fatalf("GetParam on untouched group failed: %s", err)
	}
	if got != 0 {
		t.Errorf("GetParam default: got %d, want 0", got)
	}

	// Unrecognized parameter ids are errors even without an instance.
	if _, err := svc.GetParam(key, 3, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetParam on unknown param: got %v, want ErrInvalidArgument", err)
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want unix.Errno
	}{
		{nil, 0},
		{ErrInvalidArgument, unix.EINVAL},
		{errors.Wrap(ErrInvalidArgument, "wrapped"), unix.EINVAL},
		{ErrPermissionDenied, unix.EPERM},
		{ErrInvalidHandle, unix.EBADF},
		{ErrOutOfMemory, unix.ENOMEM},
		{ErrNotFound, unix.ENOENT},
		{ErrAlreadyUnregistered, unix.ENXIO},
		{errors.New("something else"), unix.EIO},
	}

	for _, tc := range tests {
		if got := Errno(tc.err); got != tc.want {
			t.Errorf("Errno(%v): got %d, want %d", tc.err, got, tc.want)
		}
	}
}
