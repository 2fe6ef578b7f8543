package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadDotEnv copies variables from .env files into the process environment.
// Files are read from configDir, the working directory and the home
// directory, in that order. A variable already set, by the environment or by
// an earlier file, is kept. A missing file is skipped; a malformed one is a
// *ConfigurationError.
func loadDotEnv(configDir string) error {
	for _, path := range dotEnvPaths(configDir) {
		vars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return &ConfigurationError{Field: path, Reason: err.Error()}
		}

		applied := 0
		for name, value := range vars {
			if _, ok := os.LookupEnv(name); ok {
				continue
			}
			if err := os.Setenv(name, value); err != nil {
				return &ConfigurationError{Field: path, Reason: err.Error()}
			}
			applied++
		}
		slog.Debug("loaded .env", "path", path, "applied", applied, "total", len(vars))
	}
	return nil
}

// dotEnvPaths lists candidate .env files without duplicates.
func dotEnvPaths(configDir string) []string {
	dirs := []string{configDir, "."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}

	seen := make(map[string]bool, len(dirs))
	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, ".env")
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}
