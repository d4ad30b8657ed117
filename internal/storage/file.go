// filepath: internal/storage/file.go
// This file handles writing files into the storage root.
package storage

import (
	"fmt"
	"io"
	"os"
)

// writeTemp copies r into a fresh temp file inside dir, fsyncs it and
// applies mode. The caller owns the returned path.
func writeTemp(r io.Reader, dir string, mode os.FileMode) (string, int64, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("could not create file: %w", err)
	}
	name := f.Name()

	fail := func(err error) (string, int64, error) {
		f.Close()
		os.Remove(name)
		return "", 0, err
	}

	// Stream the data to the file. This is the main data transfer.
	size, err := io.Copy(f, r)
	if err != nil {
		return fail(fmt.Errorf("could not write file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("could not flush file: %w", err))
	}
	if err := f.Chmod(mode); err != nil {
		return fail(fmt.Errorf("could not set file mode: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", 0, fmt.Errorf("could not close file: %w", err)
	}
	return name, size, nil
}
