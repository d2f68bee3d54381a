package camera

import (
	"io"
	"os"
)

// WithOpenFile replaces the file opener used by Persist.
func WithOpenFile(open func(name string, flag int, perm os.FileMode) (io.WriteCloser, error)) CapturerOption {
	return func(c *Capturer) {
		c.open = open
	}
}
