//go:build linux

package system

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WatchKeys watches Linux evdev devices and invokes onKey for every press of
// one of keys. When paths is empty every /dev/input/event* node is watched.
// onKey may be called from several goroutines.
//
// It is best-effort: if no input devices are available, it logs and returns.
func WatchKeys(ctx context.Context, l logger, paths []string, keys []Key, onKey func(Key)) {
	if onKey == nil || len(keys) == 0 {
		return
	}
	watched := make(map[Key]bool, len(keys))
	for _, k := range keys {
		watched[k] = true
	}

	// Determine input_event size based on arch timeval size.
	tvSize := int(binary.Size(unix.Timeval{}))

	if len(paths) == 0 {
		found, err := filepath.Glob("/dev/input/event*")
		if err == nil {
			paths = found
		}
	}
	if len(paths) == 0 {
		if l != nil {
			l.Infof("input", "no evdev devices found for key controls")
		}
		return
	}

	for _, path := range paths {
		go watchDevice(ctx, l, path, tvSize, watched, onKey)
	}
}

func watchDevice(ctx context.Context, l logger, path string, tvSize int, watched map[Key]bool, onKey func(Key)) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if l != nil {
			l.Errorf("input", "open %s: %v", path, err)
		}
		return
	}
	f := os.NewFile(uintptr(fd), path)
	defer func() {
		_ = f.Close()
	}()

	eventSize := tvSize + 2 + 2 + 4
	buf := make([]byte, 64*eventSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(pollFds, 250); err != nil {
			if err == unix.EINTR {
				continue
			}
			// Device might have gone away.
			return
		}
		if pollFds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		for _, k := range decodeKeyPresses(buf[:n], tvSize, watched) {
			if l != nil {
				l.Infof("input", "%s pressed", k)
			}
			onKey(k)
		}
	}
}
