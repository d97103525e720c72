// Package recording provides an in-memory device.Device that records every
// command it receives instead of executing it.
//
// Commands are captured as typed structures, one Frame per BeginFrame, so
// tests can assert on exactly what a renderer asked the GPU to do. GPU
// completion never happens on its own: the test decides when a committed
// frame finishes by calling Complete or CompleteAll.
//
// # Example
//
//	dev := recording.NewDevice()
//	r, _ := gg2d.NewRenderer(dev, client)
//	r.RenderFrame()
//
//	f := dev.Frame(0)
//	for _, cmd := range f.Commands {
//	    fmt.Println(cmd.Type())
//	}
//	dev.Complete(0) // runs the frame's completion handlers
//
// The package registers itself with device.Register under the name
// "recording".
package recording
