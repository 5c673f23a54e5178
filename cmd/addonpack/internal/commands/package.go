package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wolfeidau/addonpack/internal/archive"
	"github.com/wolfeidau/addonpack/internal/assets"
	"github.com/wolfeidau/addonpack/internal/logger"
)

// PackageCmd builds the add-ons and archives the output directory together
// with the add-on manifest, which sits at the root of the archive.
type PackageCmd struct {
	BuildFlags `embed:""`

	Name      string `help:"archive name without extension" default:"addons" env:"ADDONPACK_PACKAGE_NAME"`
	Dest      string `help:"directory the archive is written to" default:"dist" env:"ADDONPACK_PACKAGE_DEST"`
	SkipBuild bool   `help:"archive the existing output without building" env:"ADDONPACK_SKIP_BUILD"`
}

func (c *PackageCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	log := logger.Setup(globals.Debug)
	defer startTelemetry(ctx, log, c.Telemetry, globals.Version)()

	pipeline, err := assets.New(c.config())
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	if !c.SkipBuild {
		if _, err := pipeline.Build(ctx); err != nil {
			return fmt.Errorf("failed to build add-ons: %w", err)
		}
	}

	dst := filepath.Join(pipeline.Resolve(c.Dest), c.Name+archive.Extension)
	result, err := archive.Create(ctx, pipeline.OutputDir(), dst, pipeline.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if err := archive.Verify(result.Path); err != nil {
		return err
	}

	fmt.Printf("Archive: %s\n", result.Path)
	fmt.Printf("Fingerprint: %s\n", result.Fingerprint)
	fmt.Printf("Files: %d (%d bytes)\n", result.Files, result.Bytes)
	return nil
}
