package assets

import (
	"embed"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/addonpack/internal/addons"
)

//go:embed templates/*.html
var templates embed.FS

// Scripts returns the ordered list of public script paths needed for the
// given add-on, its entry bundle first followed by statically imported chunks.
func (p *Pipeline) Scripts(id addons.ID) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.scripts(id)
}

func (p *Pipeline) scripts(id addons.ID) ([]string, error) {
	if p.metadata == nil || p.set == nil {
		return nil, ErrNotBuilt
	}

	addon, ok := p.set.Get(id)
	if !ok {
		return nil, errors.New("add-on not found")
	}

	entryPointPath, err := filepath.Rel(p.workDir, addon.Entry)
	if err != nil {
		return nil, err
	}
	entryPointPath = filepath.ToSlash(entryPointPath)

	scripts := []string{}
	visited := make(map[string]bool)

	// Find the output file for this entrypoint
	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint == entryPointPath {
			scripts = append(scripts, p.publicPath(outputPath))
			visited[outputPath] = true
			p.addDependencies(info, &scripts, visited)
			return scripts, nil
		}
	}

	return nil, errors.New("entrypoint not found in metadata")
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.Kind == "dynamic-import" || imp.External || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		*scripts = append(*scripts, p.publicPath(imp.Path))

		if chunkInfo, exists := p.metadata.Outputs[imp.Path]; exists {
			p.addDependencies(chunkInfo, scripts, visited)
		}
	}
}

// publicPath converts a metafile output path to its public URL.
func (p *Pipeline) publicPath(output string) string {
	rel, err := filepath.Rel(p.path(p.config.OutputDir), filepath.Join(p.workDir, filepath.FromSlash(output)))
	if err != nil {
		return output
	}
	return p.config.Namer.BasePath() + filepath.ToSlash(rel)
}

type indexEntry struct {
	Descriptor addons.Descriptor
	Scripts    []string
}

// Handler returns an http.HandlerFunc listing the enabled add-ons of the
// last build with their scripts.
func (p *Pipeline) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		defer p.mu.RUnlock()

		if p.metadata == nil {
			http.Error(w, "Build in progress", http.StatusServiceUnavailable)
			return
		}

		entries := make([]indexEntry, 0, len(p.manifest))
		for _, desc := range p.manifest {
			// enabled add-ons without an entry script have nothing to load
			scripts, _ := p.scripts(addons.ID(desc.ID()))
			entries = append(entries, indexEntry{Descriptor: desc, Scripts: scripts})
		}

		data := map[string]any{
			"Title":    "Add-ons",
			"BasePath": p.config.Namer.BasePath(),
			"Mode":     p.config.Namer.Mode().String(),
			"Addons":   entries,
		}

		if err := p.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
			log.Error().Err(err).Msg("Failed to render template")
		}
	}
}
