package assets

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/addonpack/internal/addons"
	"github.com/wolfeidau/addonpack/internal/naming"
)

type Config struct {
	// Directory relative paths are resolved against
	WorkingDir string
	// Source directory holding one folder per add-on
	SourceDir string
	// Entry script glob relative to SourceDir (e.g., "**/index.{js,jsx}")
	EntryPattern string
	// Output directory for compiled bundles, cleaned before each build
	OutputDir string
	// Path of the aggregated add-on manifest
	ManifestPath string
	// Path of the asset manifest mapping logical names to emitted files
	AssetManifestPath string
	// Prefix applied to asset manifest keys and values
	AssetManifestPrefix string
	// Path to the esbuild metafile
	MetafilePath string
	// Output naming for the distribution mode
	Namer naming.Namer
	// Whether to minify output
	Minify bool
	// Whether to enable source maps
	SourceMap bool
	// Whether rewrite mismatches fail the build
	Strict bool
	// Identifiers replaced at build time
	Define map[string]string
	// Bare imports provided by the host page, import path to global expression
	Globals map[string]string
	// Factory function for classic JSX
	JSXFactory string
	// Loaders by file extension
	Loaders map[string]api.Loader
	// Extensions refused at import time, with the reason reported
	Unsupported map[string]string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		WorkingDir:          ".",
		SourceDir:           "src",
		EntryPattern:        addons.DefaultEntryPattern,
		OutputDir:           "dist/addons",
		ManifestPath:        "dist/addons.json",
		AssetManifestPath:   "dist/addons/manifest.json",
		AssetManifestPrefix: "addons/",
		MetafilePath:        "dist/meta.json",
		Namer:               naming.FromEnv(""),
		Minify:              true,
		SourceMap:           true,
		Define:              DefaultDefine(),
		Globals:             DefaultGlobals(),
		JSXFactory:          "createElement",
		Loaders:             DefaultLoaders(),
		Unsupported:         DefaultUnsupported(),
	}
}

// DefaultDefine exposes the host's add-on base class to add-on scripts.
func DefaultDefine() map[string]string {
	return map[string]string{
		"Addon": "FrankerFaceZ.utilities.addon.Addon",
	}
}

// DefaultGlobals maps bare imports to globals the host page provides.
func DefaultGlobals() map[string]string {
	return map[string]string{
		"vue": "ffzVue",
	}
}

// DefaultLoaders maps extensions to esbuild loaders. Scripts may contain
// JSX, stylesheets are emitted as files and imported as their URL. GraphQL
// documents are imported as their source text for the host to parse.
func DefaultLoaders() map[string]api.Loader {
	return map[string]api.Loader{
		".js":      api.LoaderJSX,
		".jsx":     api.LoaderJSX,
		".css":     api.LoaderFile,
		".graphql": api.LoaderText,
		".gql":     api.LoaderText,
		".png":     api.LoaderFile,
		".jpg":     api.LoaderFile,
		".svg":     api.LoaderFile,
		".woff2":   api.LoaderFile,
	}
}

// DefaultUnsupported lists imports esbuild has no compiler for.
func DefaultUnsupported() map[string]string {
	return map[string]string{
		".vue":  "single-file components are not compiled, write the component as a render function in .js or .jsx",
		".scss": "stylesheets are not preprocessed, import compiled .css",
		".sass": "stylesheets are not preprocessed, import compiled .css",
	}
}
