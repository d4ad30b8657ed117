package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lostfound/internal/logging"
	"lostfound/internal/shared"
)

// MigrationOutcome reports what MigrateLegacyIfNeeded did.
type MigrationOutcome int

const (
	// NoLegacyFound: neither the canonical nor the legacy store exists.
	NoLegacyFound MigrationOutcome = iota
	// AlreadyCurrent: the canonical store exists; the legacy file was not touched.
	AlreadyCurrent
	// Moved: the legacy store was copied to the canonical path.
	Moved
)

func (o MigrationOutcome) String() string {
	switch o {
	case NoLegacyFound:
		return "no-legacy-found"
	case AlreadyCurrent:
		return "already-current"
	case Moved:
		return "moved"
	default:
		return fmt.Sprintf("MigrationOutcome(%d)", int(o))
	}
}

// linkFile is os.Link, replaceable in tests to simulate filesystems without hard links.
var linkFile = os.Link

// MigrateLegacyIfNeeded copies a store from the old flat layout to the
// canonical data directory. An existing canonical store is never
// overwritten and the legacy file is always left in place.
//
// The copy is written to a temp file next to the destination and then
// published with a hard link, which fails if another process published
// first. That case is reported as AlreadyCurrent.
func MigrateLegacyIfNeeded(loc StorageLocation) (MigrationOutcome, error) {
	exists, err := fileExists(loc.DatabasePath)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", shared.ErrStorageUnavailable, loc.DatabasePath, err)
	}
	if exists {
		return AlreadyCurrent, nil
	}

	src, err := os.Open(loc.LegacyDatabasePath)
	if errors.Is(err, os.ErrNotExist) {
		return NoLegacyFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: open legacy store: %v", shared.ErrStorageUnavailable, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat legacy store: %v", shared.ErrStorageUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: legacy store %s is not a regular file", shared.ErrStorageUnavailable, loc.LegacyDatabasePath)
	}

	dir := filepath.Dir(loc.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("%w: could not create directory %s: %v", shared.ErrStorageUnavailable, dir, err)
	}

	tmp, size, err := writeTemp(src, dir, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("%w: copy legacy store: %v", shared.ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp)

	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		logging.Log.Warnf("Could not preserve modification time of %s: %v", loc.LegacyDatabasePath, err)
	}

	outcome, err := publish(tmp, loc.DatabasePath)
	if err != nil {
		return 0, fmt.Errorf("%w: publish canonical store: %v", shared.ErrStorageUnavailable, err)
	}
	if outcome == Moved {
		logging.Log.Infof("Copied legacy store %s to %s (%d bytes)", loc.LegacyDatabasePath, loc.DatabasePath, size)
	} else {
		logging.Log.Debugf("Canonical store %s appeared during legacy copy, keeping it", loc.DatabasePath)
	}
	return outcome, nil
}

// publish makes tmp visible at dst without replacing an existing dst.
func publish(tmp, dst string) (MigrationOutcome, error) {
	err := linkFile(tmp, dst)
	if err == nil {
		return Moved, nil
	}
	if errors.Is(err, os.ErrExist) {
		return AlreadyCurrent, nil
	}

	// No hard links on this filesystem. Rename replaces silently, so check
	// again right before it; the remaining window is accepted.
	logging.Log.Debugf("Hard link to %s failed (%v), falling back to rename", dst, err)
	exists, statErr := fileExists(dst)
	if statErr != nil {
		return 0, statErr
	}
	if exists {
		return AlreadyCurrent, nil
	}
	if err := os.Rename(tmp, dst); err != nil {
		return 0, err
	}
	return Moved, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
