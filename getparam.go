// +build linux

package main

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/devcg/devcg/libdevcg"
	"github.com/devcg/devcg/libgfx"
)

var getparamCommand = cli.Command{
	Name:  "getparam",
	Usage: "read a gfx driver parameter of a cgroup",
	ArgsUsage: `<cgroup-path> <param>

Where "<cgroup-path>" is the cgroup's directory on the v2 hierarchy and
"<param>" is one of priority-offset, display-boost or mem-budget.`,
	Description: `The getparam command reads the value a gfx driver parameter has on a
cgroup. Cgroups that never had the parameter set report the driver's
default.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 2, exactArgs); err != nil {
			return err
		}

		name := context.Args().Get(1)
		param, ok := libgfx.ParamNames[name]
		if !ok {
			return errors.Errorf("unknown parameter %q", name)
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

		value, err := svc.GetParam(key, int(dir.Fd()), param)
		if err != nil {
			return errors.Wrapf(err, "getparam failed (errno %d)", libdevcg.Errno(err))
		}

		if param == libgfx.ParamMemBudget && value > 0 {
			fmt.Printf("%s = %d (%s)\n", name, value, units.BytesSize(float64(value)))
		} else {
			fmt.Printf("%s = %d\n", name, value)
		}
		return nil
	},
}
