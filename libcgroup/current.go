// +build linux

package libcgroup

import (
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/devcg/devcg/libdevcg"
)

// CurrentGroup resolves the calling process to its cgroup on the v2
// hierarchy.
func (c *Cgroup) CurrentGroup() (libdevcg.Group, error) {
	content, err := ReadFile("/proc/self", "cgroup")
	if err != nil {
		return libdevcg.Group{}, errors.Wrap(err, "cgroup: reading /proc/self/cgroup")
	}

	rel, err := parseCgroupFile(content)
	if err != nil {
		return libdevcg.Group{}, err
	}

	// The kernel-reported path is relative to the hierarchy root; join it
	// under the mountpoint without letting ".." escape.
	path, err := securejoin.SecureJoin(c.root, rel)
	if err != nil {
		return libdevcg.Group{}, errors.Wrapf(err, "cgroup: joining %q", rel)
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return libdevcg.Group{}, errors.Wrapf(libdevcg.ErrNotFound, "cgroup %s: %v", path, err)
	}

	return libdevcg.Group{ID: libdevcg.GroupID(st.Ino), Path: path}, nil
}

// parseCgroupFile extracts the v2 membership path from /proc/<pid>/cgroup
// content. The unified hierarchy entry has the form "0::<path>"; v1
// controller entries ("<n>:<controllers>:<path>") are ignored.
func parseCgroupFile(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		if rest, ok := strings.CutPrefix(line, "0::"); ok {
			return rest, nil
		}
	}
	return "", errors.New("cgroup: process has no cgroup-v2 membership")
}
