//go:build !linux

package system

import "context"

// WatchKeys is unavailable off Linux; it logs and returns.
func WatchKeys(ctx context.Context, l logger, paths []string, keys []Key, onKey func(Key)) {
	if l != nil {
		l.Infof("input", "key controls need Linux evdev")
	}
}
