package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/addonpack/internal/assets"
	"github.com/wolfeidau/addonpack/internal/logger"
)

// BuildCmd compiles every add-on and writes the asset and add-on manifests.
type BuildCmd struct {
	BuildFlags `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	log := logger.Setup(globals.Debug)
	defer startTelemetry(ctx, log, c.Telemetry, globals.Version)()

	cfg := c.config()
	log.Info().
		Str("version", globals.Version).
		Str("mode", cfg.Namer.Mode().String()).
		Str("base_path", cfg.Namer.BasePath()).
		Msg("Building add-ons")

	pipeline, err := assets.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	result, err := pipeline.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build add-ons: %w", err)
	}

	fmt.Printf("Built %d add-on(s), %d enabled, %d file(s)\n", len(result.Addons), len(result.Manifest), len(result.Outputs))
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	return nil
}
