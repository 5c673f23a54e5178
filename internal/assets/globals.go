package assets

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

const globalsNamespace = "addon-global"

// globalsPlugin resolves bare imports the host page already provides to the
// matching global instead of bundling a second copy.
func globalsPlugin(globals map[string]string) api.Plugin {
	return api.Plugin{
		Name: "addon-globals",
		Setup: func(build api.PluginBuild) {
			if len(globals) == 0 {
				return
			}

			names := slices.Sorted(maps.Keys(globals))
			for i, name := range names {
				names[i] = regexp.QuoteMeta(name)
			}

			build.OnResolve(api.OnResolveOptions{Filter: "^(" + strings.Join(names, "|") + ")$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: globalsNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: globalsNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := fmt.Sprintf("module.exports = globalThis.%s;", globals[args.Path])
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}
