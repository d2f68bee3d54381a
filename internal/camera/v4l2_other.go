//go:build !linux

package camera

import "errors"

// OpenV4L2 is unavailable off linux.
func OpenV4L2(path string) (Device, error) {
	return nil, errors.New("v4l2 capture requires linux")
}
