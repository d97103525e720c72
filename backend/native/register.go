package native

import (
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan hal backend

	"github.com/gogpu/gg2d/device"
)

func init() {
	device.Register("native", func(opts device.OpenOptions) (device.Device, func() error, error) {
		d, err := OpenBackend(gputypes.BackendVulkan, Config{
			Width:  opts.Width,
			Height: opts.Height,
			Logger: opts.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	})
}

var _ device.Device = (*Device)(nil)
