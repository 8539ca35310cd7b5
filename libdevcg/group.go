package libdevcg

// GroupID is the stable identity of an externally managed group within a
// single flat namespace. The cgroup authority derives it from the kernfs
// inode of the group directory; it must not be reused while cleanup for a
// destroyed group is still pending.
type GroupID uint64

// Group is the resolved identity of a group handle.
type Group struct {
	ID   GroupID
	Path string
}

// Authority is the external grouping authority the service runs against.
// The production implementation lives in libcgroup; tests supply fakes.
type Authority interface {
	// ResolveGroup resolves a group descriptor to a concrete group.
	// Descriptors that are not groups at all yield ErrInvalidHandle;
	// groups on the wrong (non-default) hierarchy yield
	// ErrInvalidArgument.
	ResolveGroup(fd int) (Group, error)

	// CurrentGroup resolves the calling task to its current group.
	CurrentGroup() (Group, error)

	// CanWrite reports whether the calling process has been granted
	// write access on the group's control surface.
	CanWrite(g Group) bool

	// WatchGroup subscribes to the destruction of g. onDestroy is
	// invoked exactly once, from an arbitrary goroutine, after the group
	// has been removed by the authority; the watch ends with it. The
	// authority must not consider the group identity reusable until
	// onDestroy has returned.
	WatchGroup(g Group, onDestroy func(GroupID)) error
}
