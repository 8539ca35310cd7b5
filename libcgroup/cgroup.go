// +build linux

package libcgroup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/devcg/devcg/libdevcg"
)

// Cgroup is the grouping authority backed by the cgroup-v2 (unified)
// hierarchy. Group identity is the inode of the cgroup directory, which the
// kernel does not reuse while the directory exists; destruction is observed
// via inotify on the directory itself.
type Cgroup struct {
	root  string
	log   *logrus.Entry
	watch *watcher
}

var _ libdevcg.Authority = (*Cgroup)(nil)

// New discovers the cgroup2 mountpoint and starts the destruction watcher.
func New() (*Cgroup, error) {
	root, err := Mountpoint()
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("subsys", "cgroup")

	w, err := newWatcher(log)
	if err != nil {
		return nil, errors.Wrap(err, "cgroup: destruction watcher")
	}

	log.Debugf("using cgroup2 hierarchy at %s", root)
	return &Cgroup{root: root, log: log, watch: w}, nil
}

// Mountpoint returns the mountpoint of the cgroup2 hierarchy.
func Mountpoint() (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup2"))
	if err != nil {
		return "", errors.Wrap(err, "cgroup: reading mountinfo")
	}
	if len(mounts) == 0 {
		return "", errors.New("cgroup: no cgroup2 hierarchy is mounted")
	}
	return mounts[0].Mountpoint, nil
}

// Root returns the hierarchy mountpoint.
func (c *Cgroup) Root() string { return c.root }

// ResolveGroup resolves an open file descriptor to a cgroup on the v2
// hierarchy. Descriptors on a v1 hierarchy are rejected as invalid
// arguments; descriptors that are not cgroups at all as invalid handles.
func (c *Cgroup) ResolveGroup(fd int) (libdevcg.Group, error) {
	var stfs unix.Statfs_t
	if err := unix.Fstatfs(fd, &stfs); err != nil {
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidHandle, "fd %d: %v", fd, err)
	}

	switch stfs.Type {
	case unix.CGROUP2_SUPER_MAGIC:
	case unix.CGROUP_SUPER_MAGIC:
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidArgument,
			"fd %d is on the cgroup-v1 hierarchy; only cgroup-v2 is supported", fd)
	default:
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidHandle, "fd %d is not a cgroup", fd)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidHandle, "fd %d: %v", fd, err)
	}

	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidHandle, "fd %d: %v", fd, err)
	}

	return libdevcg.Group{ID: libdevcg.GroupID(st.Ino), Path: path}, nil
}

// GroupFromPath resolves a cgroup directory path. Convenience for callers
// holding a path rather than a descriptor (e.g. the CLI).
func (c *Cgroup) GroupFromPath(path string) (libdevcg.Group, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrInvalidHandle, "open %s: %v", path, err)
	}
	defer unix.Close(fd)

	return c.ResolveGroup(fd)
}

// CanWrite reports whether the calling process has write access on the
// group's control surface. The check mirrors what the kernel would apply to
// the group's virtual files: effective-id access on cgroup.procs.
func (c *Cgroup) CanWrite(g libdevcg.Group) bool {
	p := filepath.Join(g.Path, "cgroup.procs")
	return unix.Faccessat(unix.AT_FDCWD, p, unix.W_OK, unix.AT_EACCESS) == nil
}

// WatchGroup subscribes onDestroy to the removal of g's directory.
func (c *Cgroup) WatchGroup(g libdevcg.Group, onDestroy func(libdevcg.GroupID)) error {
	return c.watch.add(g.Path, g.ID, onDestroy)
}

// Close stops the destruction watcher. Pending notifications are dropped.
func (c *Cgroup) Close() error {
	return c.watch.close()
}
