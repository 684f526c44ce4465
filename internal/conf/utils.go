package conf

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaultConfigPaths returns the ordered list of directories searched for
// the config file: the working directory first, then the user config dir.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		// Headless environments may have no user config dir, keep cwd only.
		return paths, nil
	}
	paths = append(paths, filepath.Join(userConfigDir, "aquaguard"))
	return paths, nil
}

// GetBasePath ensures the given directory exists relative to the working
// directory and returns its path.
func GetBasePath(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating directory %s: %w", dir, err)
	}
	return dir, nil
}

// StoragePath joins the ML storage directory with the given file name,
// creating the directory when missing.
func (s *Settings) StoragePath(name string) (string, error) {
	base, err := GetBasePath(s.ML.StorageDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}
