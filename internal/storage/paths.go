// internal/storage/paths.go
// Package storage decides where the application keeps its files on disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"lostfound/internal/shared"
)

const (
	AppDirName     = "lostfound"
	DatabaseName   = "lostfound.db"
	ConfigFileName = "config.toml"

	// EnvRoot overrides the platform data directory.
	EnvRoot = "LOSTFOUND_ROOT"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// StorageLocation is the fixed on-disk layout under one root.
// It is computed once by ResolveLocations and never mutated.
type StorageLocation struct {
	Root               string
	DatabasePath       string
	LegacyDatabasePath string
	DataDir            string
	ImagesDir          string
	LogsDir            string
	BackupsDir         string
	ConfigDir          string
	ConfigFile         string
}

// Dirs lists the directories that must exist for the layout to be usable.
func (l StorageLocation) Dirs() []string {
	return []string{l.DataDir, l.ImagesDir, l.LogsDir, l.BackupsDir, l.ConfigDir}
}

// ImagePath returns the path of an image file inside ImagesDir.
func (l StorageLocation) ImagePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid image name %q: potential path traversal", name)
	}

	// --- SECURITY: Prevent Path Traversal ---
	p := filepath.Clean(filepath.Join(l.ImagesDir, name))
	root := filepath.Clean(l.ImagesDir)
	if !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid image name %q: potential path traversal", name)
	}
	return p, nil
}

// DefaultRoot returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/lostfound (fallback ~/.local/share/lostfound)
// macOS:   ~/Library/Application Support/lostfound
// Windows: %APPDATA%/lostfound
func DefaultRoot() (string, error) {
	switch platformDir.goos {
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppDirName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", AppDirName), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppDirName), nil
	}
}

// ResolveRoot applies the precedence flag > LOSTFOUND_ROOT > DefaultRoot().
func ResolveRoot(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return filepath.Abs(env)
	}
	return DefaultRoot()
}

// Layout computes the locations under root without touching the filesystem.
func Layout(root string) StorageLocation {
	dataDir := filepath.Join(root, "data")
	configDir := filepath.Join(root, "config")
	return StorageLocation{
		Root:               root,
		DatabasePath:       filepath.Join(dataDir, DatabaseName),
		LegacyDatabasePath: filepath.Join(root, DatabaseName),
		DataDir:            dataDir,
		ImagesDir:          filepath.Join(root, "images"),
		LogsDir:            filepath.Join(root, "logs"),
		BackupsDir:         filepath.Join(root, "backups"),
		ConfigDir:          configDir,
		ConfigFile:         filepath.Join(configDir, ConfigFileName),
	}
}

// ResolveLocations resolves the root (see ResolveRoot) and makes sure every
// directory of the layout exists. Calling it again is harmless.
func ResolveLocations(root string) (StorageLocation, error) {
	resolved, err := ResolveRoot(root)
	if err != nil {
		return StorageLocation{}, fmt.Errorf("%w: resolve storage root: %v", shared.ErrStorageUnavailable, err)
	}

	loc := Layout(resolved)
	for _, dir := range loc.Dirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return StorageLocation{}, fmt.Errorf("%w: could not create directory %s: %v", shared.ErrStorageUnavailable, dir, err)
		}
	}
	return loc, nil
}
