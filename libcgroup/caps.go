// +build linux

package libcgroup

import (
	"github.com/moby/sys/capability"

	"github.com/devcg/devcg/libdevcg"
)

// CurrentActor describes the calling process for the parameter façade's
// access-control check. Admin mirrors the kernel-side CAP_SYS_RESOURCE
// test; the master role is device state the caller supplies.
func CurrentActor(master bool) libdevcg.Actor {
	actor := libdevcg.Actor{Master: master}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return actor
	}
	if err := caps.Load(); err != nil {
		return actor
	}

	actor.Admin = caps.Get(capability.EFFECTIVE, capability.CAP_SYS_RESOURCE)
	return actor
}
