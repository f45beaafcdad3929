package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysfsGraphics = "/sys/class/graphics"

// RefreshRateFromSysfs returns the refresh rate of the mode currently set on
// a framebuffer device such as /dev/fb0, read from sysfs.
func RefreshRateFromSysfs(fbDevice string) (float64, error) {
	return refreshRateFrom(sysfsGraphics, fbDevice)
}

func refreshRateFrom(root, fbDevice string) (float64, error) {
	name := filepath.Base(fbDevice)
	raw, err := os.ReadFile(filepath.Join(root, name, "mode"))
	if err != nil {
		return 0, fmt.Errorf("read %s mode: %w", name, err)
	}
	mode := strings.TrimSpace(string(raw))
	if mode == "" {
		// Some drivers leave "mode" empty; the first entry of "modes" is current.
		modes, err := os.ReadFile(filepath.Join(root, name, "modes"))
		if err != nil {
			return 0, fmt.Errorf("read %s modes: %w", name, err)
		}
		mode, _, _ = strings.Cut(strings.TrimSpace(string(modes)), "\n")
	}
	return parseModeRefresh(mode)
}

// parseModeRefresh extracts the rate from a fbdev mode string such as
// "U:1920x1080p-60".
func parseModeRefresh(mode string) (float64, error) {
	i := strings.LastIndexByte(mode, '-')
	if i < 0 || i == len(mode)-1 {
		return 0, fmt.Errorf("mode %q has no refresh rate", mode)
	}
	hz, err := strconv.ParseFloat(mode[i+1:], 64)
	if err != nil {
		return 0, fmt.Errorf("mode %q: %w", mode, err)
	}
	if !(hz > 0) {
		return 0, fmt.Errorf("mode %q has no usable refresh rate", mode)
	}
	return hz, nil
}
