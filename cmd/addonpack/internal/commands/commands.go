package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/addonpack/internal/assets"
	"github.com/wolfeidau/addonpack/internal/naming"
	"github.com/wolfeidau/addonpack/internal/telemetry"
)

const serviceName = "addonpack"

type Globals struct {
	Debug   bool
	Version string
}

// BuildFlags are shared by every command that reads the add-on sources.
type BuildFlags struct {
	// Layout
	Dir      string `help:"project directory other paths are relative to" default:"." env:"ADDONPACK_DIR"`
	Source   string `help:"directory holding one folder per add-on" default:"src" env:"ADDONPACK_SOURCE"`
	Output   string `help:"output directory for compiled add-ons, cleaned before each build" default:"dist/addons" env:"ADDONPACK_OUTPUT"`
	Manifest string `help:"path of the aggregated add-on manifest" default:"dist/addons.json" env:"ADDONPACK_MANIFEST"`

	// Distribution
	Extension string `help:"base path inside the browser extension, selects packaged output when set" env:"ADDONPACK_EXTENSION,FFZ_EXTENSION"`
	BasePath  string `help:"public base path override for emitted assets and icons" env:"ADDONPACK_BASE_PATH"`

	// Compilation
	Strict    bool              `help:"fail the build when a script does not match the expected register or import shapes" env:"ADDONPACK_STRICT"`
	Minify    bool              `help:"minify output" default:"true" negatable:"" env:"ADDONPACK_MINIFY"`
	SourceMap bool              `help:"emit linked source maps" default:"true" negatable:"" env:"ADDONPACK_SOURCEMAP"`
	Define    map[string]string `help:"extra build time identifier replacements (name=expression)" env:"ADDONPACK_DEFINE"`
	External  map[string]string `help:"extra bare imports provided by the host page (module=global)" env:"ADDONPACK_EXTERNAL"`

	Telemetry bool `help:"export build traces and metrics over OTLP" env:"ADDONPACK_TELEMETRY"`
}

func (f *BuildFlags) Validate() error {
	if f.Source == "" {
		return errors.New("source directory is required (--source or ADDONPACK_SOURCE)")
	}
	if f.Output == "" {
		return errors.New("output directory is required (--output or ADDONPACK_OUTPUT)")
	}
	if f.Manifest == "" {
		return errors.New("manifest path is required (--manifest or ADDONPACK_MANIFEST)")
	}
	if filepath.Clean(f.Source) == filepath.Clean(f.Output) {
		return errors.New("output directory must differ from the source directory")
	}
	for name := range f.Define {
		if name == "" {
			return errors.New("define requires a non-empty identifier")
		}
	}
	for module, global := range f.External {
		if module == "" || global == "" {
			return fmt.Errorf("external %q requires both a module and a global", module)
		}
	}
	return nil
}

// namer selects the distribution mode from the extension path, with an
// explicit base path taking precedence over the mode default.
func (f *BuildFlags) namer() naming.Namer {
	namer := naming.FromEnv(f.Extension)
	if f.BasePath != "" {
		namer = namer.WithBasePath(f.BasePath)
	}
	return namer
}

func (f *BuildFlags) config() assets.Config {
	cfg := assets.DefaultConfig()
	cfg.WorkingDir = f.Dir
	cfg.SourceDir = f.Source
	cfg.OutputDir = f.Output
	cfg.ManifestPath = f.Manifest
	cfg.AssetManifestPath = filepath.Join(f.Output, "manifest.json")
	cfg.MetafilePath = filepath.Join(filepath.Dir(f.Output), "meta.json")
	cfg.Namer = f.namer()
	cfg.Minify = f.Minify
	cfg.SourceMap = f.SourceMap
	cfg.Strict = f.Strict
	maps.Copy(cfg.Define, f.Define)
	maps.Copy(cfg.Globals, f.External)
	return cfg
}

// startTelemetry installs the OTLP exporters when enabled and returns a
// function flushing them.
func startTelemetry(ctx context.Context, log zerolog.Logger, enabled bool, version string) func() {
	if !enabled {
		return func() {}
	}

	log.Info().Msg("Telemetry is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, serviceName, version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
