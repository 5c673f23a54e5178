package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/addonpack/internal/addons"
	"github.com/wolfeidau/addonpack/internal/rewrite"
	"github.com/wolfeidau/addonpack/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const tracerName = "github.com/wolfeidau/addonpack/internal/assets"

// Build discovers add-ons, runs esbuild with the configured settings, copies
// icons and writes the asset and add-on manifests.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "assets.Build")
	defer span.End()

	started := time.Now()
	mode := attribute.String("mode", p.config.Namer.Mode().String())
	metrics := telemetry.GetMetrics()

	result, err := p.build(ctx)

	metrics.BuildsTotal.Add(ctx, 1, metric.WithAttributes(mode))
	metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), metric.WithAttributes(mode))
	if err != nil {
		metrics.BuildErrorsTotal.Add(ctx, 1, metric.WithAttributes(mode))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.AddonsBuilt.Record(ctx, int64(len(result.Addons)), metric.WithAttributes(mode))
	metrics.BuildWarningsTotal.Add(ctx, int64(len(result.Warnings)), metric.WithAttributes(mode))
	span.SetAttributes(attribute.String("build_id", result.BuildID), attribute.Int("addons", len(result.Addons)))

	return result, nil
}

func (p *Pipeline) build(ctx context.Context) (*Result, error) {
	result := &Result{BuildID: uuid.NewString()}
	logger := log.With().
		Str("build_id", result.BuildID).
		Str("mode", p.config.Namer.Mode().String()).
		Logger()

	srcDir := p.path(p.config.SourceDir)
	outDir := p.path(p.config.OutputDir)

	set, err := addons.Discover(srcDir, p.config.EntryPattern)
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, ErrNoEntryPoints
	}

	chunks, chunkWarnings, err := rewrite.ScanChunks(set)
	if err != nil {
		return nil, err
	}
	for _, w := range chunkWarnings {
		logger.Warn().Str("warning", w).Msg("Chunk name collision")
	}
	result.Warnings = append(result.Warnings, chunkWarnings...)

	entryPoints := make([]api.EntryPoint, 0, set.Len())
	for _, a := range set.Addons() {
		result.Addons = append(result.Addons, a.ID)
		entryPoints = append(entryPoints, api.EntryPoint{InputPath: a.Entry, OutputPath: a.EntryName()})
	}
	chunkPoints := make([]api.EntryPoint, 0, len(chunks))
	for _, c := range chunks {
		chunkPoints = append(chunkPoints, api.EntryPoint{InputPath: c.Path, OutputPath: c.Name})
	}
	result.Chunks = chunks

	logger.Info().Strs("addons", addonNames(result.Addons)).Int("chunks", len(chunks)).Msg("Building add-ons")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.clean(outDir, srcDir); err != nil {
		return nil, err
	}

	// Lazy chunks are built first as ES modules so entries can import them
	// by their final, possibly hashed, URL.
	var metafiles []string
	urls := make(map[string]string, len(chunks))

	if len(chunkPoints) > 0 {
		metafile, err := p.run(logger, result, p.buildOptions(set, chunkPoints, api.FormatESModule, nil, srcDir, outDir))
		if err != nil {
			return nil, err
		}
		metafiles = append(metafiles, metafile)

		if urls, err = p.chunkURLs(metafile, chunks); err != nil {
			return nil, err
		}
	}

	// Entries are self-contained classic scripts.
	metafile, err := p.run(logger, result, p.buildOptions(set, entryPoints, api.FormatIIFE, urls, srcDir, outDir))
	if err != nil {
		return nil, err
	}
	metafiles = append(metafiles, metafile)

	combined, err := mergeMetafiles(metafiles...)
	if err != nil {
		return nil, err
	}

	// Write metafile
	if err := writeFile(p.path(p.config.MetafilePath), combined); err != nil {
		return nil, err
	}

	// Parse and cache metadata
	var metadata BuildMetadata
	if err := json.Unmarshal(combined, &metadata); err != nil {
		return nil, err
	}

	manifest, icons, err := p.writeManifest()
	if err != nil {
		return nil, err
	}
	result.Manifest = manifest

	copied, err := copyIcons(icons, outDir, p.config.Namer.IconPath)
	if err != nil {
		return nil, err
	}

	result.Assets, result.Outputs, err = p.assetManifest(&metadata, outDir, copied)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result.Assets)
	if err != nil {
		return nil, err
	}
	if err := writeFile(p.path(p.config.AssetManifestPath), data); err != nil {
		return nil, err
	}

	p.set = set
	p.metadata = &metadata

	logger.Info().
		Int("outputs", len(result.Outputs)).
		Int("enabled", len(result.Manifest)).
		Int("warnings", len(result.Warnings)).
		Msg("Built add-ons")

	return result, nil
}

// run executes one esbuild pass, recording its warnings on result, and
// returns the metafile.
func (p *Pipeline) run(logger zerolog.Logger, result *Result, opts api.BuildOptions) (string, error) {
	buildResult := api.Build(opts)

	for _, msg := range buildResult.Warnings {
		text := formatMessage(msg)
		logger.Warn().Str("warning", text).Msg("Build warning")
		result.Warnings = append(result.Warnings, text)
	}

	if len(buildResult.Errors) > 0 {
		for _, msg := range buildResult.Errors {
			logger.Error().Str("error", formatMessage(msg)).Msg("Build error")
		}
		return "", fmt.Errorf("%w: %d error(s)", ErrBuildFailed, len(buildResult.Errors))
	}

	for _, file := range buildResult.OutputFiles {
		logger.Debug().Str("file", file.Path).Msg("Built file")
	}

	return buildResult.Metafile, nil
}

// chunkURLs maps the source path of every lazy chunk to the public URL of
// its compiled module.
func (p *Pipeline) chunkURLs(metafile string, chunks []rewrite.Chunk) (map[string]string, error) {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return nil, err
	}

	byEntry := make(map[string]string, len(metadata.Outputs))
	for output, info := range metadata.Outputs {
		if info.EntryPoint != "" {
			byEntry[info.EntryPoint] = output
		}
	}

	urls := make(map[string]string, len(chunks))
	for _, c := range chunks {
		rel, err := filepath.Rel(p.workDir, c.Path)
		if err != nil {
			return nil, err
		}

		output, ok := byEntry[filepath.ToSlash(rel)]
		if !ok {
			return nil, fmt.Errorf("%w: no output for lazy chunk %s", ErrBuildFailed, c.Name)
		}
		urls[c.Path] = p.publicPath(output)
	}

	return urls, nil
}

// mergeMetafiles combines the inputs and outputs of several esbuild metafiles.
func mergeMetafiles(metafiles ...string) ([]byte, error) {
	type metafile struct {
		Inputs  map[string]json.RawMessage `json:"inputs"`
		Outputs map[string]json.RawMessage `json:"outputs"`
	}

	combined := metafile{
		Inputs:  make(map[string]json.RawMessage),
		Outputs: make(map[string]json.RawMessage),
	}

	for _, raw := range metafiles {
		var m metafile
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("failed to parse metafile: %w", err)
		}
		maps.Copy(combined.Inputs, m.Inputs)
		maps.Copy(combined.Outputs, m.Outputs)
	}

	return json.Marshal(combined)
}

// buildOptions configures one esbuild pass. Splitting stays off so every
// output is self-contained and no shared chunk needs a hashed name.
func (p *Pipeline) buildOptions(set *addons.Set, entryPoints []api.EntryPoint, format api.Format, chunkURLs map[string]string, srcDir, outDir string) api.BuildOptions {
	namer := p.config.Namer

	return api.BuildOptions{
		AbsWorkingDir:       p.workDir,
		EntryPointsAdvanced: entryPoints,
		Bundle:              true,
		Write:               true,
		Format:              format,
		Platform:            api.PlatformBrowser,
		Outdir:              outDir,
		Outbase:             srcDir,
		EntryNames:          namer.EntryNames(),
		AssetNames:          namer.AssetNames(),
		PublicPath:          namer.BasePath(),
		JSX:                 api.JSXTransform,
		JSXFactory:          p.config.JSXFactory,
		Loader:              p.config.Loaders,
		Define:              p.config.Define,
		MinifyWhitespace:    p.config.Minify,
		MinifyIdentifiers:   p.config.Minify,
		MinifySyntax:        p.config.Minify,
		KeepNames:           true,
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           cond(p.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		Plugins: []api.Plugin{
			globalsPlugin(p.config.Globals),
			unsupportedPlugin(p.config.Unsupported),
			lazyChunksPlugin(chunkURLs),
			rewrite.Plugin(set, rewrite.Options{Strict: p.config.Strict}),
		},
	}
}

// WriteManifest aggregates the add-on descriptors and writes the combined
// manifest without compiling anything.
func (p *Pipeline) WriteManifest() ([]addons.Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	manifest, _, err := p.writeManifest()
	return manifest, err
}

// writeManifest writes the aggregated manifest and returns it with the logo
// files its derived icon URLs point at.
func (p *Pipeline) writeManifest() ([]addons.Descriptor, []addons.Icon, error) {
	manifest, icons, err := addons.AggregateIcons(addons.AggregateOptions{
		Root:     p.path(p.config.SourceDir),
		BasePath: p.config.Namer.BasePath(),
	})
	if err != nil {
		return nil, nil, err
	}

	if err := addons.WriteManifest(p.path(p.config.ManifestPath), manifest); err != nil {
		return nil, nil, err
	}

	p.manifest = manifest
	return manifest, icons, nil
}

// assetManifest maps logical asset names to emitted paths, leaving out
// source maps, and returns the emitted paths relative to the output directory.
func (p *Pipeline) assetManifest(metadata *BuildMetadata, outDir string, icons []string) (map[string]string, []string, error) {
	prefix := p.config.AssetManifestPrefix
	assets := make(map[string]string)
	var outputs []string

	for output := range metadata.Outputs {
		rel, err := filepath.Rel(outDir, filepath.Join(p.workDir, filepath.FromSlash(output)))
		if err != nil {
			return nil, nil, err
		}
		rel = filepath.ToSlash(rel)
		outputs = append(outputs, rel)

		if strings.HasSuffix(rel, ".map") {
			continue
		}
		assets[prefix+p.config.Namer.Logical(rel)] = prefix + rel
	}

	for _, icon := range icons {
		outputs = append(outputs, icon)
		assets[prefix+icon] = prefix + icon
	}

	slices.Sort(outputs)
	return assets, outputs, nil
}

// clean removes the output directory, refusing anything that would take the
// working or source directory with it or that lives inside the sources.
func (p *Pipeline) clean(outDir, srcDir string) error {
	if outDir == p.workDir || within(outDir, p.workDir) || outDir == srcDir || within(outDir, srcDir) || within(srcDir, outDir) {
		return fmt.Errorf("%w: %s", ErrUnsafeOutputDir, outDir)
	}

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("failed to clean output directory: %w", err)
	}

	return nil
}

// copyIcons publishes the logos behind the manifest's derived icon URLs,
// returning the copied paths relative to the output directory.
func copyIcons(icons []addons.Icon, outDir string, iconPath func(id, file string) string) ([]string, error) {
	copied := make([]string, 0, len(icons))
	sources := make(map[string]string, len(icons))

	for _, icon := range icons {
		dst := iconPath(string(icon.ID), icon.Name)
		if prev, ok := sources[dst]; ok {
			return nil, fmt.Errorf("%w: icon %s used by %s and %s", addons.ErrDuplicateID, dst, prev, icon.Source)
		}
		sources[dst] = icon.Source

		if err := copyFile(icon.Source, filepath.Join(outDir, filepath.FromSlash(dst))); err != nil {
			return nil, err
		}
		copied = append(copied, dst)
	}

	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return out.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // published artifact
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}

func addonNames(ids []addons.ID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

// within reports whether dir is an ancestor of path.
func within(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}

