package vulkan

import (
	"strings"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
)

// deviceLost logs the checkpoints of every unfinished submission and returns the error
// to surface. The device is unusable afterwards.
func (d *Device) deviceLost(during string) error {
	d.lost = true
	d.log.Error("device lost", "during", during)
	for _, q := range d.queues {
		for i, s := range q.pending {
			if s.fence.Signaled() {
				continue
			}
			d.log.Error("unfinished submission",
				"family", q.Family.Index,
				"submission", i,
				"checkpoints", strings.Join(s.cmd.checkpoints, " > "))
		}
	}
	return errors.Wrapf(gfx.ErrDeviceLost, "%s on %s", during, d.PhysicalDevice.Name)
}

// Lost reports whether the device was lost.
func (d *Device) Lost() bool { return d.lost }
