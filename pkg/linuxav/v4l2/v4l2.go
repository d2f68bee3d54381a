//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation and memory-mapped streaming I/O.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Streaming I/O
//
// Open a device, negotiate a format and exchange mmap buffers with the driver:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//	pix, _ := dev.SetFormat(v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixelFmtGrey})
//	granted, _ := dev.RequestBuffers(3)
//	for i := uint32(0); i < granted; i++ {
//	    buf, _ := dev.QueryBuffer(i)
//	    mem, _ := dev.Map(buf.Offset, buf.Length)
//	    ...
//	}
//	dev.StreamOn()
//	dev.Queue(0)
//	done, _ := dev.Dequeue() // blocks until the driver fills a buffer
//
// The values returned by SetFormat are the ones the driver actually
// negotiated and may differ from the request.
package v4l2
