// +build linux

package main

import (
	"fmt"
	"os"
	"strconv"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/devcg/devcg/libcgroup"
	"github.com/devcg/devcg/libdevcg"
	"github.com/devcg/devcg/libgfx"
)

var setparamCommand = cli.Command{
	Name:  "setparam",
	Usage: "set a gfx driver parameter on a cgroup",
	ArgsUsage: `<cgroup-path> <param> <value>

Where "<cgroup-path>" is the cgroup's directory on the v2 hierarchy,
"<param>" is one of priority-offset, display-boost or mem-budget, and
"<value>" is the value to assign (mem-budget accepts human-readable sizes,
e.g. "512M").`,
	Description: `The setparam command associates a gfx driver parameter value with a
cgroup. The setting applies to all processes in the cgroup; drivers read it
back on their submission and display paths. Setting a parameter requires
CAP_SYS_RESOURCE, the device master role (--master), or write access on the
cgroup's virtual files.`,
	Action: func(context *cli.Context) error {
		profiler, err := runProfiler(context)
		if err != nil {
			return err
		}
		defer func() {
			if profiler != nil {
				logrus.Info("Stopping profiler ...")
				profiler.Stop()
			}
		}()

		if err := checkArgs(context, 3, exactArgs); err != nil {
			return err
		}

		param, ok := libgfx.ParamNames[context.Args().Get(1)]
		if !ok {
			return errors.Errorf("unknown parameter %q", context.Args().Get(1))
		}

		value, err := parseValue(param, context.Args().Get(2))
		if err != nil {
			return err
		}

		auth, svc, key, err := newService(context)
		if err != nil {
			return err
		}
		defer svc.Shutdown()
		defer auth.Close()

		dir, err := os.Open(context.Args().First())
		if err != nil {
			return errors.Wrap(err, "opening cgroup")
		}
		defer dir.Close()

		req := libdevcg.SetParamRequest{
			GroupFD: int(dir.Fd()),
			Param:   param,
			Value:   value,
		}
		actor := libcgroup.CurrentActor(context.GlobalBool("master"))

		if err := svc.SetParam(key, actor, req); err != nil {
			return errors.Wrapf(err, "setparam failed (errno %d)", libdevcg.Errno(err))
		}

		fmt.Printf("%s = %d\n", context.Args().Get(1), value)
		return nil
	},
}

// parseValue parses a CLI parameter value; byte-valued parameters accept
// human-readable sizes.
func parseValue(param uint64, s string) (int64, error) {
	if param == libgfx.ParamMemBudget {
		v, err := units.RAMInBytes(s)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid size %q", s)
		}
		return v, nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value %q", s)
	}
	return v, nil
}

// newService wires the cgroup authority, the parameter service and the gfx
// driver together the way a device would at load time.
func newService(context *cli.Context) (*libcgroup.Cgroup, *libdevcg.Service, libdevcg.OwnerKey, error) {
	if !context.GlobalBool("no-kernel-check") {
		if err := libcgroup.CheckHost(); err != nil {
			return nil, nil, 0, errors.Wrap(err, "host check failed")
		}
	}

	auth, err := libcgroup.New()
	if err != nil {
		return nil, nil, 0, err
	}

	svc := libdevcg.New(auth)

	key, err := svc.RegisterOwner(libgfx.New())
	if err != nil {
		auth.Close()
		return nil, nil, 0, err
	}

	return auth, svc, key, nil
}
