package assets

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// lazyChunksPlugin leaves dynamic imports of already built lazy chunks in
// place, pointing them at the chunk's public URL. urls is keyed by the
// absolute source path of each chunk.
func lazyChunksPlugin(urls map[string]string) api.Plugin {
	return api.Plugin{
		Name: "addon-lazy-chunks",
		Setup: func(build api.PluginBuild) {
			if len(urls) == 0 {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?/`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind != api.ResolveJSDynamicImport {
						return api.OnResolveResult{}, nil
					}

					url, ok := urls[filepath.Join(args.ResolveDir, filepath.FromSlash(args.Path))]
					if !ok {
						return api.OnResolveResult{}, nil
					}

					return api.OnResolveResult{Path: url, External: true}, nil
				})
		},
	}
}

// unsupportedPlugin fails imports of file types esbuild cannot compile, with
// a message naming the reason instead of esbuild's generic loader error.
// reasons is keyed by extension including the dot.
func unsupportedPlugin(reasons map[string]string) api.Plugin {
	return api.Plugin{
		Name: "addon-unsupported",
		Setup: func(build api.PluginBuild) {
			if len(reasons) == 0 {
				return
			}

			exts := slices.Sorted(maps.Keys(reasons))
			for i, ext := range exts {
				exts[i] = regexp.QuoteMeta(ext)
			}

			build.OnResolve(api.OnResolveOptions{Filter: `(` + strings.Join(exts, "|") + `)$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					reason := reasons[filepath.Ext(args.Path)]
					if reason == "" {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{}, fmt.Errorf("cannot import %s: %s", args.Path, reason)
				})
		},
	}
}
