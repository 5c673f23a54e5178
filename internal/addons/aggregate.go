package addons

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// IconNames lists the sibling icon files checked for add-ons without an
// explicit icon, in order of preference.
var IconNames = []string{"logo.png", "logo.jpg"}

// AggregateOptions configures manifest aggregation.
type AggregateOptions struct {
	// Root is the source directory holding add-on folders
	Root string
	// BasePath is the public path prefix used for derived icon URLs
	BasePath string
	// DescriptorNames overrides DefaultDescriptorNames
	DescriptorNames []string
}

// Icon is a logo file a manifest entry was given a derived icon URL for.
type Icon struct {
	ID ID
	// Name is the file name, one of IconNames
	Name string
	// Source is the path of the logo inside the add-on folder
	Source string
}

// Aggregate reads every add-on descriptor under the source root and returns
// the enabled ones, with identity injected and icons resolved, sorted by id.
//
// A descriptor that cannot be parsed fails the whole aggregation.
func Aggregate(opts AggregateOptions) ([]Descriptor, error) {
	manifest, _, err := AggregateIcons(opts)
	return manifest, err
}

// AggregateIcons is Aggregate, also returning the logo files behind every
// derived icon URL so they can be published next to the scripts. Only a logo
// sitting directly in the add-on folder is used.
func AggregateIcons(opts AggregateOptions) ([]Descriptor, []Icon, error) {
	names := opts.DescriptorNames
	if len(names) == 0 {
		names = DefaultDescriptorNames
	}

	descriptors, err := findDescriptors(opts.Root, names)
	if err != nil {
		return nil, nil, err
	}

	manifest := make([]Descriptor, 0, len(descriptors))
	var icons []Icon
	seen := make(map[ID]string)

	for _, rel := range descriptors {
		file := filepath.Join(opts.Root, filepath.FromSlash(rel))

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read descriptor: %w", err)
		}

		desc, err := ParseDescriptor(file, data)
		if err != nil {
			return nil, nil, err
		}

		if !desc.Enabled() {
			log.Debug().Str("path", rel).Msg("Skipping disabled add-on")
			continue
		}

		id, err := IDFromPath(rel)
		if err != nil {
			return nil, nil, err
		}
		if prev, ok := seen[id]; ok {
			return nil, nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateID, id, prev, rel)
		}
		seen[id] = rel

		delete(desc, fieldEnabled)
		desc[fieldID] = string(id)

		if !desc.hasIcon() {
			if icon, ok := FindIcon(filepath.Dir(file)); ok {
				desc[fieldIcon] = opts.BasePath + string(id) + "/" + icon
				icons = append(icons, Icon{ID: id, Name: icon, Source: filepath.Join(filepath.Dir(file), icon)})
			}
		}

		manifest = append(manifest, desc)
	}

	slices.SortFunc(manifest, func(a, b Descriptor) int {
		return strings.Compare(a.ID(), b.ID())
	})

	slices.SortFunc(icons, func(a, b Icon) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	return manifest, icons, nil
}

// MarshalManifest renders the aggregated manifest as tab indented JSON.
func MarshalManifest(manifest []Descriptor) ([]byte, error) {
	if manifest == nil {
		manifest = []Descriptor{}
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")

	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteManifest writes the aggregated manifest to path, creating parent directories.
func WriteManifest(path string, manifest []Descriptor) error {
	data, err := MarshalManifest(manifest)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // published artifact
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// findDescriptors returns one descriptor per folder, slash separated and
// relative to root, picking the first name from names present in the folder.
func findDescriptors(root string, names []string) ([]string, error) {
	pattern := "**/{" + strings.Join(names, ",") + "}"

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob descriptors: %w", err)
	}

	byDir := make(map[string]string)
	for _, rel := range matches {
		dir := path.Dir(rel)
		if dir == "." || inNodeModules(rel) {
			continue
		}

		current, ok := byDir[dir]
		if !ok || slices.Index(names, path.Base(rel)) < slices.Index(names, path.Base(current)) {
			byDir[dir] = rel
		}
	}

	found := make([]string, 0, len(byDir))
	for _, rel := range byDir {
		found = append(found, rel)
	}
	slices.Sort(found)

	return found, nil
}

// FindIcon returns the first of IconNames present as a regular file in dir.
func FindIcon(dir string) (string, bool) {
	for _, name := range IconNames {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.Mode().IsRegular() {
			return name, true
		}
	}
	return "", false
}
