// Package hotplug watches kernel device events so the monitor can tell when
// a camera node disappears and comes back.
//
// On Linux events arrive over a NETLINK_KOBJECT_UEVENT socket without cgo or
// udev. Elsewhere only polling is available.
package hotplug

import (
	"bytes"
	"encoding/binary"
	"path"
	"strings"
)

// Actions reported by the kernel.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the subsystem of V4L2 device nodes.
const SubsystemVideo4Linux = "video4linux"

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // /devices/... path of the kernel object
	Subsystem string
	DevName   string // node name relative to /dev, e.g. "video0"
	Env       map[string]string
}

// DeviceNode returns the /dev path of the event's node, empty when the event
// names no node.
func (e Event) DeviceNode() string {
	if e.DevName == "" {
		return ""
	}
	return path.Join("/dev", e.DevName)
}

// ParseUEvent parses a kernel "ACTION@KOBJ\0KEY=VALUE\0..." message or a
// udevd message carrying the binary "libudev" header.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, libudevPrefix) {
		return parseLibudev(data)
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 || len(parts[0]) == 0 {
		return nil
	}

	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return nil
	}

	event := &Event{Action: action, KObj: kobj}
	event.setEnv(parts[1:])
	return event
}

var libudevPrefix = []byte("libudev\x00")

const (
	libudevMagic      = 0xfeedcafe
	libudevHeaderSize = 40
)

// parseLibudev reads the properties block located by the header. The magic
// is big-endian; the offsets are in host byte order. ACTION and DEVPATH
// travel as properties.
func parseLibudev(data []byte) *Event {
	if len(data) < libudevHeaderSize || binary.BigEndian.Uint32(data[8:12]) != libudevMagic {
		return nil
	}
	off := int(binary.NativeEndian.Uint32(data[16:20]))
	n := int(binary.NativeEndian.Uint32(data[20:24]))
	if off < libudevHeaderSize || n <= 0 || off > len(data) || n > len(data)-off {
		return nil
	}

	event := &Event{}
	event.setEnv(bytes.Split(data[off:off+n], []byte{0}))
	event.Action = event.Env["ACTION"]
	event.KObj = event.Env["DEVPATH"]
	if event.Action == "" {
		return nil
	}
	// udev reports the full node path
	event.DevName = strings.TrimPrefix(event.DevName, "/dev/")
	return event
}

func (e *Event) setEnv(parts [][]byte) {
	e.Env = make(map[string]string)
	for _, part := range parts {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		e.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			e.Subsystem = value
		case "DEVNAME":
			e.DevName = value
		}
	}
}
