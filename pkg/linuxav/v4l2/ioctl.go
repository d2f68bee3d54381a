//go:build linux

package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl issues a V4L2 request, retrying when a signal interrupts a blocking call.
func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errors.Is(errno, unix.EINTR) {
			continue
		}
		return errno
	}
}

// open opens a device node for probing without blocking on dequeue.
func open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

// openBlocking opens a device node for streaming; VIDIOC_DQBUF waits for a filled buffer.
func openBlocking(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

func close(fd int) error {
	return unix.Close(fd)
}
