// Package gg2d is a frame-pipelined 2D rendering core for GPUs that execute
// frames asynchronously.
//
// A client implements Client and draws through the Engine it is handed each
// frame: points, lines, triangles, textured rectangles and text. The Renderer
// batches that geometry into pooled vertex buffers, switches pipelines only
// when the kind of geometry changes, and keeps every buffer and texture a
// frame referenced alive until the GPU reports that frame complete. Up to
// three frames may be queued; when the GPU falls further behind, RenderFrame
// skips a tick instead of blocking.
//
// # Quick Start
//
//	dev := recording.NewDevice() // or a native.Device
//	r, err := gg2d.NewRenderer(dev, &myClient{},
//	    gg2d.WithViewport(800, 600),
//	    gg2d.WithBackgroundColor(gg2d.RGB(0.1, 0.1, 0.2)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for {
//	    if _, err := r.RenderFrame(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Threading
//
// Recording happens on the goroutine calling RenderFrame. GPU completion may
// arrive on any goroutine; the pool and texture cache lock internally so
// completion can run concurrently with the next frame's recording.
//
// # Logging
//
// gg2d is silent by default. Call SetLogger, or pass WithLogger to a single
// Renderer, to receive diagnostics through log/slog.
package gg2d
