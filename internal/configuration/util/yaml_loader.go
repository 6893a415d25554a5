package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrConfigNotFound = errors.New("config file not found")

// LoadAndExpandYaml reads <baseDir>/<name>.yml (or .yaml) and expands
// environment references in it.
func LoadAndExpandYaml(baseDir, name string) (string, error) {
	for _, ext := range []string{".yml", ".yaml"} {
		raw, err := os.ReadFile(filepath.Join(baseDir, name+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s%s: %w", name, ext, err)
		}
		return ExpandEnvStrict(string(raw))
	}
	return "", fmt.Errorf("%s.yml: %w", name, ErrConfigNotFound)
}
