package libdevcg

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeAuthority is an in-memory grouping authority. Group handles are plain
// ints mapped to groups; destruction is triggered by the test.
type fakeAuthority struct {
	mu        sync.Mutex
	fds       map[int]Group
	v1        map[int]bool
	current   Group
	writable  bool
	watches   map[GroupID]func(GroupID)
	failWatch bool
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		fds:     make(map[int]Group),
		v1:      make(map[int]bool),
		watches: make(map[GroupID]func(GroupID)),
	}
}

func (a *fakeAuthority) addGroup(fd int, id GroupID) Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := Group{ID: id, Path: "/fake"}
	a.fds[fd] = g
	return g
}

func (a *fakeAuthority) ResolveGroup(fd int) (Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.v1[fd] {
		return Group{}, errors.Wrap(ErrInvalidArgument, "wrong hierarchy")
	}
	g, ok := a.fds[fd]
	if !ok {
		return Group{}, errors.Wrap(ErrInvalidHandle, "no such fd")
	}
	return g, nil
}

func (a *fakeAuthority) CurrentGroup() (Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.ID == 0 {
		return Group{}, errors.New("no current group")
	}
	return a.current, nil
}

func (a *fakeAuthority) CanWrite(g Group) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writable
}

func (a *fakeAuthority) WatchGroup(g Group, onDestroy func(GroupID)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWatch {
		return errors.New("group already gone")
	}
	a.watches[g.ID] = onDestroy
	return nil
}

// destroy simulates the authority removing a group.
func (a *fakeAuthority) destroy(gid GroupID) {
	a.mu.Lock()
	fn := a.watches[gid]
	delete(a.watches, gid)
	a.mu.Unlock()
	if fn != nil {
		fn(gid)
	}
}

// testOwner stores a single parameter (id 1) with an advertised range and
// counts allocations and destructor runs.
type testOwner struct {
	min, max int64
	def      int64

	allocs atomic.Int32
	frees  atomic.Int32
}

type testPayload struct {
	val int64
}

func (o *testOwner) Alloc() (Payload, error) {
	o.allocs.Add(1)
	return &testPayload{val: o.def}, nil
}

func (o *testOwner) UpdateParam(p Payload, param uint64, val int64) error {
	if param != 1 {
		return errors.Wrapf(ErrInvalidArgument, "unknown param %d", param)
	}
	if val < o.min || val > o.max {
		return errors.Wrapf(ErrInvalidArgument, "value %d outside [%d,%d]", val, o.min, o.max)
	}
	p.(*testPayload).val = val
	return nil
}

func (o *testOwner) ReadParam(p Payload, param uint64) (int64, error) {
	if param != 1 {
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown param %d", param)
	}
	return p.(*testPayload).val, nil
}

func (o *testOwner) DefaultParam(param uint64) (int64, error) {
	if param != 1 {
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown param %d", param)
	}
	return o.def, nil
}

func (o *testOwner) Free(p Payload) {
	o.frees.Add(1)
}

// newTestService wires a service with one registered owner of range
// [-10,10] and one group behind fd 3.
func newTestService(t *testing.T) (*Service, *fakeAuthority, *testOwner, OwnerKey, Group) {
	t.Helper()

	auth := newFakeAuthority()
	auth.writable = true
	svc := New(auth)

	owner := &testOwner{min: -10, max: 10}
	key, err := svc.RegisterOwner(owner)
	if err != nil {
		t.Fatalf("RegisterOwner failed: %s", err)
	}

	g := auth.addGroup(3, 100)
	return svc, auth, owner, key, g
}

func TestGroupDestroyedNoResurrection(t *testing.T) {
	svc, auth, owner, key, g := newTestService(t)

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}
	inst.Release()

	auth.destroy(g.ID)

	if _, err := svc.Get(g.ID, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after group destruction: got %v, want ErrNotFound", err)
	}
	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestGroupDestroyedWithHeldReference(t *testing.T) {
	svc, auth, owner, key, g := newTestService(t)

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}

	// Destruction with a reference still held: the instance vanishes from
	// lookups but the destructor is deferred to the last release.
	auth.destroy(g.ID)

	if _, err := svc.Get(g.ID, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after group destruction: got %v, want ErrNotFound", err)
	}
	if n := owner.frees.Load(); n != 0 {
		t.Errorf("destructor ran %d times before last release, want 0", n)
	}

	inst.Release()

	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times after last release, want 1", n)
	}

	// No resurrection after the deferred destruction either.
	if _, err := svc.Get(g.ID, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after release: got %v, want ErrNotFound", err)
	}
}

func TestGroupDestroyedIdempotent(t *testing.T) {
	svc, auth, owner, key, g := newTestService(t)

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}
	inst.Release()

	auth.destroy(g.ID)
	svc.GroupDestroyed(g.ID) // second trigger for the same group
	svc.GroupDestroyed(777)  // group that never had instances

	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestUnregisterBlocksUntilRelease(t *testing.T) {
	svc, _, owner, key, g := newTestService(t)

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.UnregisterOwner(key)
	}()

	select {
	case <-done:
		t.Fatal("UnregisterOwner returned while a reference was still held")
	case <-time.After(50 * time.Millisecond):
	}

	inst.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("UnregisterOwner failed: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatal("UnregisterOwner did not complete after the last release")
	}

	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestUnregisterDrainsAllGroups(t *testing.T) {
	svc, auth, owner, key, g1 := newTestService(t)
	g2 := auth.addGroup(4, 200)

	for _, g := range []Group{g1, g2} {
		inst, err := svc.GetOrCreate(g, key)
		if err != nil {
			t.Fatalf("GetOrCreate(%d) failed: %s", g.ID, err)
		}
		inst.Release()
	}

	if err := svc.UnregisterOwner(key); err != nil {
		t.Fatalf("UnregisterOwner failed: %s", err)
	}

	if n := owner.frees.Load(); n != 2 {
		t.Errorf("destructor ran %d times, want 2", n)
	}
}

func TestTeardownTriggersAreMutuallyExclusive(t *testing.T) {
	svc, auth, owner, key, g := newTestService(t)

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}
	inst.Release()

	// Group destruction first, then owner shutdown; the instance must be
	// destroyed exactly once.
	auth.destroy(g.ID)
	if err := svc.UnregisterOwner(key); err != nil {
		t.Fatalf("UnregisterOwner failed: %s", err)
	}

	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestWatchFailureReapsImmediately(t *testing.T) {
	svc, auth, owner, key, g := newTestService(t)
	auth.failWatch = true

	// The group vanished between creation and watch subscription; the
	// instance must not outlive the caller's reference.
	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}

	if _, err := svc.Get(g.ID, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after failed watch: got %v, want ErrNotFound", err)
	}

	inst.Release()
	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestShutdownUnregistersAllOwners(t *testing.T) {
	svc, _, owner, key, g := newTestService(t)

	second := &testOwner{min: 0, max: 1}
	if _, err := svc.RegisterOwner(second); err != nil {
		t.Fatalf("RegisterOwner failed: %s", err)
	}

	inst, err := svc.GetOrCreate(g, key)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %s", err)
	}
	inst.Release()

	svc.Shutdown()

	if n := owner.frees.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
	if _, err := svc.GetOrCreate(g, key); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetOrCreate after shutdown: got %v, want ErrInvalidArgument", err)
	}
}
