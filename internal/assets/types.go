package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"path/filepath"
	"sync"

	"github.com/wolfeidau/addonpack/internal/addons"
	"github.com/wolfeidau/addonpack/internal/rewrite"
)

var (
	// ErrNoEntryPoints indicates no add-on entry scripts were found
	ErrNoEntryPoints = errors.New("no entry points found")
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNotBuilt indicates metadata was requested before a successful build
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrUnsafeOutputDir indicates the output directory cannot be cleaned safely
	ErrUnsafeOutputDir = errors.New("refusing to clean output directory")
)

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

// Result describes a completed build.
type Result struct {
	BuildID string
	Addons  []addons.ID
	Chunks  []rewrite.Chunk
	// Outputs are emitted files relative to the output directory
	Outputs  []string
	Warnings []string
	Manifest []addons.Descriptor
	// Assets is the asset manifest, logical name to emitted path
	Assets map[string]string
}

// Pipeline manages the add-on build and the metadata of the last build
type Pipeline struct {
	config   Config
	workDir  string
	set      *addons.Set
	metadata *BuildMetadata
	manifest []addons.Descriptor
	tmpl     *template.Template
	mu       sync.RWMutex
}

// New creates a new add-on pipeline with the given configuration
func New(config Config) (*Pipeline, error) {
	workDir, err := filepath.Abs(config.WorkingDir)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("index").Funcs(template.FuncMap{
		"marshal": marshal,
	}).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:  config,
		workDir: workDir,
		tmpl:    tmpl,
	}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Resolve resolves a configured path against the working directory.
func (p *Pipeline) Resolve(name string) string {
	return p.path(name)
}

// OutputDir is the absolute output directory.
func (p *Pipeline) OutputDir() string {
	return p.path(p.config.OutputDir)
}

// ManifestPath is the absolute path of the aggregated add-on manifest.
func (p *Pipeline) ManifestPath() string {
	return p.path(p.config.ManifestPath)
}

func (p *Pipeline) path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(p.workDir, name)
}

func marshal(value any) template.JS {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return template.JS(buf.String()) //nolint:gosec // encoded JSON
}
