package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/wolfeidau/addonpack/internal/addons"
)

// SourcePattern matches the add-on sources that are rewritten.
const SourcePattern = "**/*.{js,jsx}"

// Chunk is a lazily imported file built as its own entry point.
type Chunk struct {
	Addon addons.ID
	// Name is the output path without extension
	Name string
	Path string
}

// ScanChunks finds the lazily imported files of every add-on so they can be
// emitted under their chunk names. When two files of one add-on share a chunk
// name, the first keeps it and the others are nested below it; a warning is
// returned for each of those.
func ScanChunks(set *addons.Set) ([]Chunk, []string, error) {
	var (
		chunks   []Chunk
		warnings []string
	)

	for _, a := range set.Addons() {
		targets, err := lazyTargets(set, a)
		if err != nil {
			return nil, nil, err
		}

		names := make(map[string]string)
		for _, target := range targets {
			name := ChunkName(string(a.ID), strings.TrimPrefix(filepath.Ext(target), "."))

			if prev, taken := names[name]; taken {
				rel, err := filepath.Rel(a.Dir, strings.TrimSuffix(target, filepath.Ext(target)))
				if err != nil {
					return nil, nil, err
				}
				nested := name + "/" + filepath.ToSlash(rel)
				warnings = append(warnings, fmt.Sprintf("chunk %q is already used by %s, emitting %s as %q", name, prev, target, nested))
				name = nested
			}

			names[name] = target
			chunks = append(chunks, Chunk{Addon: a.ID, Name: name, Path: target})
		}
	}

	return chunks, warnings, nil
}

// lazyTargets returns the existing files dynamically imported by sources
// owned by the add-on, sorted and without duplicates.
func lazyTargets(set *addons.Set, a addons.Addon) ([]string, error) {
	sources, err := doublestar.Glob(os.DirFS(a.Dir), SourcePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob sources of %s: %w", a.ID, err)
	}

	var targets []string

	for _, rel := range sources {
		if slices.Contains(strings.Split(rel, "/"), "node_modules") {
			continue
		}

		file := filepath.Join(a.Dir, filepath.FromSlash(rel))
		if owner, ok := set.Owner(file); !ok || owner.ID != a.ID {
			continue
		}

		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read source: %w", err)
		}

		for _, imp := range FindDynamicImports(src) {
			target, err := filepath.Abs(filepath.Join(filepath.Dir(file), filepath.FromSlash(imp.Specifier())))
			if err != nil {
				return nil, err
			}
			if set.IsEntry(target) {
				continue
			}
			if info, err := os.Stat(target); err != nil || !info.Mode().IsRegular() {
				continue
			}
			targets = append(targets, target)
		}
	}

	slices.Sort(targets)
	return slices.Compact(targets), nil
}
