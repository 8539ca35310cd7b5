// +build linux

package libcgroup

import (
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// The min supported kernel release is chosen based on cgroup-v2 maturity:
// 4.15 is the first release where the unified hierarchy's delegation model
// and fd-based cgroup references behave as this package expects.
const minKernel = "4.15"

// CheckHost verifies the host can run the parameter service: a mounted
// cgroup2 hierarchy and a recent enough kernel.
func CheckHost() error {
	if _, err := Mountpoint(); err != nil {
		return err
	}

	rel, err := kernelRelease()
	if err != nil {
		return err
	}

	return kernelSupported(rel)
}

func kernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", errors.Wrap(err, "uname")
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}

// kernelSupported compares a kernel release string (e.g. "6.8.0-41-generic")
// against the minimum supported release. Only the leading numeric
// "major.minor[.patch]" part is significant; distro suffixes vary too much
// to parse.
func kernelSupported(release string) error {
	release = strings.TrimSpace(release)

	base := release
	if i := strings.IndexFunc(base, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, ".")

	v, err := semver.NewVersion(base)
	if err != nil {
		return errors.Wrapf(err, "failed to parse kernel release %q", release)
	}

	if v.LessThan(semver.MustParse(minKernel)) {
		return errors.Errorf("kernel release %v is not supported; need >= %v", release, minKernel)
	}

	return nil
}
