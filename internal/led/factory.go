package led

import (
	"os"
	"strings"

	"github.com/smazurov/sitemon/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boards maps a device tree model substring to its LED names.
var boards = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{Status: "sys_led", "user": "usr_led"}},
	{"Orange Pi", map[string]string{Status: "green_led", "blue": "blue_led"}},
	{"Raspberry Pi", map[string]string{Status: "ACT", "power": "PWR"}},
}

// New creates a controller for the detected board, falling back to a no-op
// controller when the board has no known LEDs.
func New(logger logging.Logger) Controller {
	if logger == nil {
		logger = logging.GetLogger("led")
	}
	return forModel(detectBoard(), sysfsLEDPath, logger)
}

func forModel(model, root string, logger logging.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.model) {
			logger.Info("Detected board, using sysfs LED controller", "board_model", model)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
