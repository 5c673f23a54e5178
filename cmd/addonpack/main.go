package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/addonpack/cmd/addonpack/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build    commands.BuildCmd    `cmd:"" help:"Compile add-ons and write the manifests"`
		Manifest commands.ManifestCmd `cmd:"" help:"Write the aggregated add-on manifest only"`
		Serve    commands.ServeCmd    `cmd:"" help:"Build and serve add-ons for local development"`
		Package  commands.PackageCmd  `cmd:"" help:"Build add-ons and archive the output"`
		Debug    bool                 `help:"Enable debug mode." env:"ADDONPACK_DEBUG"`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Description("Builds browser add-ons: discovery, manifest aggregation and bundling."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
