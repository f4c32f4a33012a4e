package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtension is the rule file extension.
const DefaultExtension = ".xule"

// Source is one rule file to compile.
type Source struct {
	Name    string
	Content string
}

// Hash returns the hex SHA-256 of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FindRuleFiles walks root and returns the files with one of exts, sorted.
// With no exts, DefaultExtension is used.
func FindRuleFiles(root string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = []string{DefaultExtension}
	}
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		for _, ext := range exts {
			if strings.HasSuffix(path, ext) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// CollectSources reads the given files, and the rule files found under
// the given directories. Files named explicitly are read whatever their
// extension. Duplicates are read once.
func CollectSources(paths []string, exts ...string) ([]Source, error) {
	var sources []Source
	seen := make(map[string]bool)
	add := func(path string) error {
		name := filepath.ToSlash(filepath.Clean(path))
		if seen[name] {
			return nil
		}
		seen[name] = true
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		sources = append(sources, Source{Name: name, Content: string(data)})
		return nil
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := add(p); err != nil {
				return nil, err
			}
			continue
		}
		files, err := FindRuleFiles(p, exts...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		for _, f := range files {
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}
	return sources, nil
}
