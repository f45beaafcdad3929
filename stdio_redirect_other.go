//go:build !unix

package main

import "os"

// attachStdio swaps the os.Stdout and os.Stderr handles. Runtime panics still
// go to the original stderr.
func attachStdio(f *os.File) error {
	os.Stdout = f
	os.Stderr = f
	return nil
}
