//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// attachStdio duplicates f onto fds 1 and 2 so runtime panics land in it too.
// f itself is closed; the duplicated descriptors stay open.
func attachStdio(f *os.File) error {
	defer f.Close()
	for _, std := range []*os.File{os.Stdout, os.Stderr} {
		if err := unix.Dup2(int(f.Fd()), int(std.Fd())); err != nil {
			return err
		}
	}
	return nil
}
