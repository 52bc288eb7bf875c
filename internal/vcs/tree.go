package vcs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadTree reads an exported project directory into a path-to-content map
// with forward-slash relative paths, ready for Push. Git metadata and
// node_modules are skipped, as are non-regular files.
func LoadTree(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", dir, err)
	}
	return files, nil
}
