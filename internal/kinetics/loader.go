package kinetics

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed mechanisms/*.yaml
var embeddedFS embed.FS

const mechanismExt = ".yaml"

// FileLoader resolves mechanism identifiers against search directories,
// then the built-in library, then the identifier as a file path.
// It keeps no state between calls and is safe for concurrent use.
type FileLoader struct {
	searchDirs []string // checked in order; first match wins
}

// NewLoader creates a loader with the given search directories
func NewLoader(searchDirs ...string) *FileLoader {
	return &FileLoader{searchDirs: searchDirs}
}

// DefaultLoader creates a loader with the standard search paths:
// 1. Project-local: .knightshock/mechanisms/
// 2. User config: ~/.config/knightshock/mechanisms/
// followed by any extra directories.
func DefaultLoader(projectRoot string, extra ...string) *FileLoader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".knightshock", "mechanisms"))
	}
	if home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "knightshock", "mechanisms"))
	}
	dirs = append(dirs, extra...)

	return NewLoader(dirs...)
}

// Load reads and parses the mechanism named by id. An identifier without
// an extension is looked up as id.yaml.
func (l *FileLoader) Load(id string) (Mechanism, error) {
	data, err := l.loadContent(id)
	if err != nil {
		return nil, err
	}
	m, err := ParseMechanism(data)
	if err != nil {
		return nil, fmt.Errorf("mechanism %s: %w", id, err)
	}
	if m.MechName == "" {
		m.MechName = strings.TrimSuffix(filepath.Base(id), mechanismExt)
	}
	return m, nil
}

func (l *FileLoader) loadContent(id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("empty mechanism id: %w", ErrMechanismNotFound)
	}
	file := id
	if filepath.Ext(file) == "" {
		file += mechanismExt
	}

	// Check search directories first
	for _, dir := range l.searchDirs {
		if data, err := os.ReadFile(filepath.Join(dir, file)); err == nil {
			return data, nil
		}
	}

	// Then the built-in library
	if !strings.ContainsAny(file, `/\`) {
		if data, err := fs.ReadFile(embeddedFS, path.Join("mechanisms", file)); err == nil {
			return data, nil
		}
	}

	// Finally a literal path
	data, err := os.ReadFile(id)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("mechanism %s: %w", id, err)
	}
	return nil, fmt.Errorf("mechanism %s: %w", id, ErrMechanismNotFound)
}

// Available lists the identifiers visible through the search directories
// and the built-in library, sorted and deduplicated
func (l *FileLoader) Available() ([]string, error) {
	seen := make(map[string]bool)
	add := func(name string) {
		if strings.HasSuffix(name, mechanismExt) {
			seen[strings.TrimSuffix(name, mechanismExt)] = true
		}
	}

	for _, dir := range l.searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				add(e.Name())
			}
		}
	}

	entries, err := fs.ReadDir(embeddedFS, "mechanisms")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		add(e.Name())
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
