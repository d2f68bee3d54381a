package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// blink timings for the timer trigger, in milliseconds
const (
	blinkOnMS  = "100"
	blinkOffMS = "100"
)

// sysfs implements Controller using the Linux sysfs LED class
type sysfs struct {
	root string
	leds map[string]string // LED type -> sysfs name mapping
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	sysfsName, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("LED type %q not supported on this board", ledType)
	}

	ledPath := filepath.Join(s.root, sysfsName)
	if _, err := os.Stat(ledPath); os.IsNotExist(err) {
		return fmt.Errorf("LED %q not found at %s", ledType, ledPath)
	}

	if !enabled {
		// a running trigger would turn the LED back on
		if err := s.write(ledPath, "trigger", "none"); err != nil {
			return err
		}
		return s.write(ledPath, "brightness", "0")
	}

	switch pattern {
	case "":
	case PatternSolid:
		if err := s.write(ledPath, "trigger", "none"); err != nil {
			return err
		}
	case PatternBlink:
		if err := s.write(ledPath, "trigger", "timer"); err != nil {
			return err
		}
		// delay files appear once the timer trigger is active
		if err := s.write(ledPath, "delay_on", blinkOnMS); err != nil {
			return err
		}
		if err := s.write(ledPath, "delay_off", blinkOffMS); err != nil {
			return err
		}
		return nil
	default:
		// heartbeat and raw kernel trigger names
		return s.write(ledPath, "trigger", pattern)
	}

	return s.write(ledPath, "brightness", "1")
}

func (s *sysfs) write(ledPath, attr, value string) error {
	if err := os.WriteFile(filepath.Join(ledPath, attr), []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to set LED %s: %w", attr, err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for ledType := range s.leds {
		types = append(types, ledType)
	}
	slices.Sort(types)
	return types
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
