package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTree materializes a generated file map under root. Every path in the
// map must stay inside root; anything that would escape aborts the whole
// write.
func WriteTree(root string, files map[string][]byte) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", root, err)
	}

	for name, contents := range files {
		path, err := resolve(root, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(path, contents, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}

func resolve(root, name string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("generated path escapes staging directory: %s", name)
	}
	return path, nil
}
