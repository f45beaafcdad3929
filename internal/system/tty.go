package system

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// KD console modes from linux/kd.h
const (
	kdText     = 0x00
	kdGraphics = 0x01
	kdSetMode  = 0x4B3A // KDSETMODE ioctl
)

// Prefer /dev/tty (active VT), fallback to /dev/tty0
var vtPaths = []string{"/dev/tty", "/dev/tty0"}

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

// SetGraphicsMode switches the active console to graphics mode so the text
// console and its cursor stop drawing over the framebuffer.
func SetGraphicsMode() error { return setKDMode(kdGraphics, "KD_GRAPHICS") }

// RestoreTextMode restores the console to text mode so cursor and normal console return.
func RestoreTextMode() error { return setKDMode(kdText, "KD_TEXT") }

func setKDMode(mode int, name string) error {
	var lastErr error
	for _, p := range vtPaths {
		fd, err := unix.Open(p, unix.O_RDONLY, 0)
		if err != nil {
			lastErr = fmt.Errorf("open %s: %w", p, err)
			continue
		}
		err = unix.IoctlSetInt(fd, kdSetMode, mode)
		_ = unix.Close(fd)
		if err != nil {
			lastErr = fmt.Errorf("%s on %s: %w", name, p, err)
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("%s failed: unknown error", name)
}

// HideCursor writes the ANSI escape to hide the cursor to the active VT.
func HideCursor() error { return writeVT("\x1b[?25l") }
func ShowCursor() error { return writeVT("\x1b[?25h") }

func writeVT(s string) error {
	var lastErr error
	for _, p := range vtPaths {
		f, err := os.OpenFile(p, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = f.WriteString(s)
		_ = f.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("write VT failed: %w", lastErr)
	}
	return errors.New("write VT failed: unknown error")
}

// EnterGraphicsConsole puts the console in graphics mode with the cursor
// hidden. The returned func restores text mode; it is safe to call even when
// entering failed. Failures are logged, never fatal.
func EnterGraphicsConsole(l logger) (restore func()) {
	graphics := logStep(l, "KD_GRAPHICS set", "KD_GRAPHICS failed", SetGraphicsMode())
	hidden := logStep(l, "cursor hidden", "hide cursor failed", HideCursor())
	return func() {
		if hidden {
			logStep(l, "cursor shown", "show cursor failed", ShowCursor())
		}
		if graphics {
			logStep(l, "KD_TEXT set", "KD_TEXT failed", RestoreTextMode())
		}
	}
}

func logStep(l logger, ok, failed string, err error) bool {
	if l == nil {
		return err == nil
	}
	if err != nil {
		l.Errorf("tty", "%s: %v", failed, err)
		return false
	}
	l.Infof("tty", "%s", ok)
	return true
}
