package addons

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// DefaultEntryPattern matches add-on entry scripts relative to the source root.
const DefaultEntryPattern = "**/index.{js,jsx}"

// Addon is a discovered add-on folder with its entry script.
type Addon struct {
	ID    ID
	Dir   string
	Entry string

	absDir   string
	absEntry string
}

// EntryName is the bundler entry name for the add-on, also its output path without extension.
func (a Addon) EntryName() string {
	return string(a.ID) + "/script"
}

// IsEntry reports whether file is the add-on's entry script.
func (a Addon) IsEntry(file string) bool {
	abs, err := resolve(file)
	return err == nil && abs == a.absEntry
}

// Set is the result of add-on discovery, ordered by ID.
type Set struct {
	root   string
	addons []Addon
}

// Discover scans root for add-on entry scripts matching pattern.
//
// Folders without an entry script are simply absent from the result. Entry
// scripts directly in root and anything under node_modules are ignored.
func Discover(root, pattern string) (*Set, error) {
	if pattern == "" {
		pattern = DefaultEntryPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid entry pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob entry scripts: %w", err)
	}

	set := &Set{root: root}
	seen := make(map[ID]string)

	for _, rel := range matches {
		if inNodeModules(rel) {
			continue
		}

		if path.Dir(rel) == "." {
			log.Debug().Str("path", rel).Msg("Ignoring entry script outside an add-on folder")
			continue
		}

		id, err := IDFromPath(rel)
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateID, id, prev, rel)
		}
		seen[id] = rel

		dir := filepath.Join(root, filepath.FromSlash(path.Dir(rel)))
		entry := filepath.Join(root, filepath.FromSlash(rel))

		absDir, err := resolve(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve add-on directory: %w", err)
		}
		absEntry, err := resolve(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve entry script: %w", err)
		}

		set.addons = append(set.addons, Addon{
			ID:       id,
			Dir:      dir,
			Entry:    entry,
			absDir:   absDir,
			absEntry: absEntry,
		})
	}

	slices.SortFunc(set.addons, func(a, b Addon) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	return set, nil
}

// Root returns the source root the set was discovered from.
func (s *Set) Root() string {
	return s.root
}

// Addons returns the discovered add-ons ordered by ID.
func (s *Set) Addons() []Addon {
	return slices.Clone(s.addons)
}

// Len returns the number of discovered add-ons.
func (s *Set) Len() int {
	return len(s.addons)
}

// Entries returns the bundler entry map, entry name to entry script path.
func (s *Set) Entries() map[string]string {
	entries := make(map[string]string, len(s.addons))
	for _, a := range s.addons {
		entries[a.EntryName()] = a.Entry
	}
	return entries
}

// Get looks up an add-on by ID.
func (s *Set) Get(id ID) (Addon, bool) {
	for _, a := range s.addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

// Owner returns the add-on whose folder contains file. Nested add-ons win
// over their parents.
func (s *Set) Owner(file string) (Addon, bool) {
	abs, err := resolve(file)
	if err != nil {
		return Addon{}, false
	}

	var (
		owner Addon
		found bool
	)
	for _, a := range s.addons {
		if !within(a.absDir, abs) {
			continue
		}
		if !found || len(a.absDir) > len(owner.absDir) {
			owner, found = a, true
		}
	}

	return owner, found
}

// IsEntry reports whether file is the entry script of any add-on.
func (s *Set) IsEntry(file string) bool {
	for _, a := range s.addons {
		if a.IsEntry(file) {
			return true
		}
	}
	return false
}

// resolve returns the absolute path with symlinks evaluated, the form the
// bundler reports paths in. Paths that do not exist are only made absolute.
func resolve(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func within(dir, file string) bool {
	return strings.HasPrefix(file, dir+string(filepath.Separator))
}

func inNodeModules(rel string) bool {
	return slices.Contains(strings.Split(rel, "/"), "node_modules")
}
