// Package naming decides where compiled add-on assets are written and how
// they are addressed, depending on how the bundles are distributed.
package naming

import (
	"path"
	"regexp"
	"strings"
)

// DefaultHostedBasePath is the public path add-ons are served from when hosted.
const DefaultHostedBasePath = "//cdn.frankerfacez.com/static/addons/"

// hashed matches the content hash esbuild inserts before the extension.
var hashed = regexp.MustCompile(`\.[A-Z2-7]{8}(\.[^./]+)?$`)

// Mode is the distribution mode of a build.
type Mode int

const (
	// Hosted output is served from a CDN and named with content hashes.
	Hosted Mode = iota
	// Packaged output is shipped inside the extension and named stably.
	Packaged
)

func (m Mode) String() string {
	switch m {
	case Packaged:
		return "packaged"
	default:
		return "hosted"
	}
}

// ModeFromEnv selects the distribution mode from the extension environment
// value. A non-empty value selects packaged mode and is its base path.
func ModeFromEnv(value string) (Mode, string) {
	if value != "" {
		return Packaged, value
	}
	return Hosted, DefaultHostedBasePath
}

// Namer produces esbuild naming templates and public URLs for one mode.
type Namer struct {
	mode     Mode
	basePath string
}

// New returns a Namer for mode, ensuring the base path ends with a slash.
func New(mode Mode, basePath string) Namer {
	if basePath != "" && !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return Namer{mode: mode, basePath: basePath}
}

// FromEnv is shorthand for New(ModeFromEnv(value)).
func FromEnv(value string) Namer {
	return New(ModeFromEnv(value))
}

// WithBasePath returns a copy using a different public base path.
func (n Namer) WithBasePath(basePath string) Namer {
	return New(n.mode, basePath)
}

func (n Namer) Mode() Mode {
	return n.mode
}

func (n Namer) BasePath() string {
	return n.basePath
}

// EntryNames is the esbuild template for add-on scripts and lazy chunks.
// Builds never split, so there is no template for shared chunks.
func (n Namer) EntryNames() string {
	return n.template("[dir]/[name]")
}

// AssetNames is the esbuild template for stylesheets and other files
// referenced from scripts.
func (n Namer) AssetNames() string {
	return n.template("[dir]/[name]")
}

func (n Namer) template(base string) string {
	if n.mode == Packaged {
		return base
	}
	return base + ".[hash]"
}

// IconPath is the output path of a copied icon, relative to the output directory.
func (n Namer) IconPath(id, file string) string {
	return path.Join(id, file)
}

// IconURL is the public URL of a copied icon.
func (n Namer) IconURL(id, file string) string {
	return n.basePath + n.IconPath(id, file)
}

// Logical strips the content hash from an emitted path, giving the stable
// name used as its asset manifest key.
func (n Namer) Logical(rel string) string {
	if n.mode == Packaged {
		return rel
	}
	return hashed.ReplaceAllString(rel, "$1")
}
