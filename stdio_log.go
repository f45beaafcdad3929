package main

import (
	"fmt"
	"os"
	"time"
)

// redirectStdIO sends stdout and stderr to path, appending. Each run starts
// with a marker line so crashes can be matched to a boot.
func redirectStdIO(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "\n=== fbembed pid %d started %s ===\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if err := attachStdio(f); err != nil {
		return fmt.Errorf("redirect stdio to %s: %w", path, err)
	}
	return nil
}
