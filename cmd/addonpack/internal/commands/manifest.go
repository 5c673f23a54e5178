package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/addonpack/internal/assets"
	"github.com/wolfeidau/addonpack/internal/logger"
)

// ManifestCmd aggregates the add-on descriptors without compiling anything.
type ManifestCmd struct {
	BuildFlags `embed:""`
}

func (c *ManifestCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	logger.Setup(globals.Debug)

	pipeline, err := assets.New(c.config())
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	manifest, err := pipeline.WriteManifest()
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Printf("Wrote %d enabled add-on(s) to %s\n", len(manifest), c.Manifest)
	return nil
}
