package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/addonpack/internal/addons"
)

// PluginName identifies the rewrite plugin in esbuild messages.
const PluginName = "addon-rewrite"

// Options controls how the rewrite plugin reports sources that do not fit
// the expected call shapes.
type Options struct {
	// Strict turns mismatches into build errors instead of warnings
	Strict bool
}

// Plugin returns an esbuild plugin applying the rewrites to every script
// owned by an add-on in set. Scripts outside any add-on load unchanged.
func Plugin(set *addons.Set, opts Options) api.Plugin {
	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.jsx?$`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return load(set, opts, args.Path)
				})
		},
	}
}

func load(set *addons.Set, opts Options, path string) (api.OnLoadResult, error) {
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), "node_modules") {
		return api.OnLoadResult{}, nil
	}

	owner, ok := set.Owner(path)
	if !ok {
		return api.OnLoadResult{}, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	id := string(owner.ID)
	var problems []api.Message

	if owner.IsEntry(path) {
		var count int
		if src, count = RegisterCall(src, id); count == 0 {
			problems = append(problems, message(path, "no zero-argument register() call found in the entry script of %q", id))
		}
	}

	src, _, unmatched := DynamicImports(src, id)
	if unmatched > 0 {
		problems = append(problems, message(path, "%d relative dynamic import(s) not of the form import('./file.ext') were not given a chunk name", unmatched))
	}

	contents := string(src)
	result := api.OnLoadResult{
		Contents:   &contents,
		ResolveDir: filepath.Dir(path),
		Loader:     api.LoaderJSX,
	}

	if opts.Strict {
		result.Errors = problems
	} else {
		result.Warnings = problems
	}

	return result, nil
}

func message(path, format string, args ...any) api.Message {
	return api.Message{
		PluginName: PluginName,
		Text:       fmt.Sprintf(format, args...),
		Location:   &api.Location{File: path},
	}
}
