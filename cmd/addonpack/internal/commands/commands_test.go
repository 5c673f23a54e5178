package commands

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/addonpack/internal/archive"
	"github.com/wolfeidau/addonpack/internal/assets"
	"github.com/wolfeidau/addonpack/internal/naming"
)

var project = map[string]string{
	"src/myaddon/index.js":      "class MyAddon extends Addon {}\nMyAddon.register();\n",
	"src/myaddon/manifest.json": `{"enabled": true, "name": "My Add-on"}`,
	"src/myaddon/logo.png":      "png",
	"src/hidden/index.js":       "class Hidden extends Addon {}\nHidden.register();\n",
	"src/hidden/manifest.json":  `{"enabled": false, "name": "Hidden"}`,
}

func writeProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range project {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func defaultFlags(dir string) BuildFlags {
	return BuildFlags{
		Dir:      dir,
		Source:   "src",
		Output:   "dist/addons",
		Manifest: "dist/addons.json",
	}
}

func TestBuildFlags_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(f *BuildFlags)
		wantErr string
	}{
		{name: "defaults", modify: func(f *BuildFlags) {}},
		{name: "missing source", modify: func(f *BuildFlags) { f.Source = "" }, wantErr: "source directory is required"},
		{name: "missing output", modify: func(f *BuildFlags) { f.Output = "" }, wantErr: "output directory is required"},
		{name: "missing manifest", modify: func(f *BuildFlags) { f.Manifest = "" }, wantErr: "manifest path is required"},
		{name: "output is source", modify: func(f *BuildFlags) { f.Output = "./src" }, wantErr: "must differ"},
		{name: "empty define", modify: func(f *BuildFlags) { f.Define = map[string]string{"": "x"} }, wantErr: "non-empty identifier"},
		{name: "empty external global", modify: func(f *BuildFlags) { f.External = map[string]string{"react": ""} }, wantErr: "requires both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := defaultFlags(".")
			tt.modify(&flags)

			err := flags.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildFlags_namer(t *testing.T) {
	tests := []struct {
		name      string
		extension string
		basePath  string
		mode      naming.Mode
		expected  string
	}{
		{name: "hosted", mode: naming.Hosted, expected: naming.DefaultHostedBasePath},
		{name: "packaged", extension: "/ext/addons", mode: naming.Packaged, expected: "/ext/addons/"},
		{name: "hosted override", basePath: "http://localhost:8080/addons", mode: naming.Hosted, expected: "http://localhost:8080/addons/"},
		{name: "packaged override", extension: "/ext/", basePath: "/other/", mode: naming.Packaged, expected: "/other/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := defaultFlags(".")
			flags.Extension = tt.extension
			flags.BasePath = tt.basePath

			namer := flags.namer()
			assert.Equal(t, tt.mode, namer.Mode())
			assert.Equal(t, tt.expected, namer.BasePath())
		})
	}
}

func TestBuildFlags_config(t *testing.T) {
	flags := defaultFlags("/project")
	flags.Define = map[string]string{"DEBUG": "false"}
	flags.External = map[string]string{"react": "ffzReact"}
	flags.Strict = true

	cfg := flags.config()
	assert.Equal(t, "/project", cfg.WorkingDir)
	assert.Equal(t, filepath.Join("dist", "addons", "manifest.json"), cfg.AssetManifestPath)
	assert.Equal(t, filepath.Join("dist", "meta.json"), cfg.MetafilePath)
	assert.True(t, cfg.Strict)
	assert.False(t, cfg.Minify)
	assert.Equal(t, "false", cfg.Define["DEBUG"])
	assert.Equal(t, assets.DefaultDefine()["Addon"], cfg.Define["Addon"])
	assert.Equal(t, map[string]string{"vue": "ffzVue", "react": "ffzReact"}, cfg.Globals)
}

func TestKong_env(t *testing.T) {
	t.Setenv("ADDONPACK_EXTENSION", "/ext/addons/")
	t.Setenv("ADDONPACK_STRICT", "true")

	var cli struct {
		Build BuildCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"build", "--no-minify"})
	require.NoError(t, err)

	assert.Equal(t, "/ext/addons/", cli.Build.Extension)
	assert.True(t, cli.Build.Strict)
	assert.False(t, cli.Build.Minify)
	assert.True(t, cli.Build.SourceMap)
	assert.Equal(t, "dist/addons", cli.Build.Output)
	assert.Equal(t, naming.Packaged, cli.Build.namer().Mode())
}

func TestKong_envFallback(t *testing.T) {
	t.Setenv("FFZ_EXTENSION", "chrome-extension://abc/addons/")

	var cli struct {
		Build BuildCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"build"})
	require.NoError(t, err)

	assert.Equal(t, "chrome-extension://abc/addons/", cli.Build.Extension)
	assert.Equal(t, naming.Packaged, cli.Build.namer().Mode())
	assert.Equal(t, "chrome-extension://abc/addons/", cli.Build.namer().BasePath())
}

func TestManifestCmd_Run(t *testing.T) {
	root := writeProject(t)

	cmd := &ManifestCmd{BuildFlags: defaultFlags(root)}
	cmd.Extension = "/ext/addons/"
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	data, err := os.ReadFile(filepath.Join(root, "dist", "addons.json"))
	require.NoError(t, err)

	var manifest []map[string]any
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, "myaddon", manifest[0]["id"])
	assert.Equal(t, "/ext/addons/myaddon/logo.png", manifest[0]["icon"])
	assert.NotContains(t, manifest[0], "enabled")
}

func TestBuildCmd_Run(t *testing.T) {
	root := writeProject(t)

	cmd := &BuildCmd{BuildFlags: defaultFlags(root)}
	cmd.Extension = "/ext/addons/"
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	assert.FileExists(t, filepath.Join(root, "dist", "addons", "myaddon", "script.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "addons", "hidden", "script.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "addons", "manifest.json"))
	assert.FileExists(t, filepath.Join(root, "dist", "meta.json"))
}

func TestBuildCmd_Run_invalid(t *testing.T) {
	cmd := &BuildCmd{BuildFlags: defaultFlags(t.TempDir())}
	cmd.Source = ""

	require.Error(t, cmd.Run(context.Background(), &Globals{}))
}

func TestPackageCmd_Run(t *testing.T) {
	root := writeProject(t)

	cmd := &PackageCmd{BuildFlags: defaultFlags(root), Name: "addons", Dest: "dist"}
	cmd.Extension = "/ext/addons/"
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	path := filepath.Join(root, "dist", "addons"+archive.Extension)
	require.NoError(t, archive.Verify(path))

	out := t.TempDir()
	require.NoError(t, archive.Extract(path, out))
	assert.FileExists(t, filepath.Join(out, "myaddon", "script.js"))
	assert.FileExists(t, filepath.Join(out, "myaddon", "logo.png"))

	data, err := os.ReadFile(filepath.Join(out, "addons.json"))
	require.NoError(t, err)

	var manifest []map[string]any
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, "myaddon", manifest[0]["id"])
	assert.Equal(t, "/ext/addons/myaddon/logo.png", manifest[0]["icon"])
}

func TestPackageCmd_Run_skipBuildWithoutOutput(t *testing.T) {
	root := writeProject(t)

	cmd := &PackageCmd{BuildFlags: defaultFlags(root), Name: "addons", Dest: "dist", SkipBuild: true}
	require.Error(t, cmd.Run(context.Background(), &Globals{}))
}

func TestServeCmd_handler(t *testing.T) {
	root := writeProject(t)

	cmd := &ServeCmd{BuildFlags: defaultFlags(root), CORSOrigins: []string{"*"}}
	cmd.BasePath = "http://127.0.0.1:8080/addons/"

	pipeline, err := assets.New(cmd.config())
	require.NoError(t, err)
	_, err = pipeline.Build(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(cmd.handler(pipeline, zerolog.Nop()))
	defer srv.Close()

	get := func(path string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://www.twitch.tv")

		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := get("/addons.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"id": "myaddon"`)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store, must-revalidate", resp.Header.Get("Cache-Control"))

	resp, body = get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "My Add-on")

	resp, _ = get("/addons/myaddon/logo.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get("/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
