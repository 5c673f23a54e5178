package addons

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basePath = "//cdn.example.com/addons/"

func TestAggregate(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"enabled/manifest.json":  `{"enabled": true, "name": "Enabled", "version": "1.0.0"}`,
		"disabled/manifest.json": `{"enabled": false, "name": "Disabled"}`,
		"unset/manifest.json":    `{"name": "Unset"}`,
		"truthy/manifest.json":   `{"enabled": "yes", "name": "Truthy string"}`,
	})

	manifest, err := Aggregate(AggregateOptions{Root: root, BasePath: basePath})
	require.NoError(t, err)
	require.Len(t, manifest, 1)

	desc := manifest[0]
	assert.Equal(t, "enabled", desc.ID())
	assert.Equal(t, "Enabled", desc["name"])
	assert.NotContains(t, desc, "enabled")
	assert.NotContains(t, desc, "icon")
}

func TestAggregate_idOverwritten(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"myaddon/manifest.json": `{"enabled": true, "id": "something-else"}`,
	})

	manifest, err := Aggregate(AggregateOptions{Root: root, BasePath: basePath})
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "myaddon", manifest[0].ID())
}

func TestAggregate_icons(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantIcon string
		hasIcon  bool
	}{
		{
			name: "png icon",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true}`,
				"myaddon/logo.png":      "png",
			},
			wantIcon: basePath + "myaddon/logo.png",
			hasIcon:  true,
		},
		{
			name: "jpg fallback",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true}`,
				"myaddon/logo.jpg":      "jpg",
			},
			wantIcon: basePath + "myaddon/logo.jpg",
			hasIcon:  true,
		},
		{
			name: "png preferred over jpg",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true}`,
				"myaddon/logo.png":      "png",
				"myaddon/logo.jpg":      "jpg",
			},
			wantIcon: basePath + "myaddon/logo.png",
			hasIcon:  true,
		},
		{
			name: "explicit icon passes through",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true, "icon": "https://example.com/icon.svg"}`,
				"myaddon/logo.png":      "png",
			},
			wantIcon: "https://example.com/icon.svg",
			hasIcon:  true,
		},
		{
			name: "empty icon is derived",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true, "icon": ""}`,
				"myaddon/logo.png":      "png",
			},
			wantIcon: basePath + "myaddon/logo.png",
			hasIcon:  true,
		},
		{
			name: "false icon is derived",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true, "icon": false}`,
				"myaddon/logo.png":      "png",
			},
			wantIcon: basePath + "myaddon/logo.png",
			hasIcon:  true,
		},
		{
			name: "zero icon is derived",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true, "icon": 0}`,
				"myaddon/logo.jpg":      "jpg",
			},
			wantIcon: basePath + "myaddon/logo.jpg",
			hasIcon:  true,
		},
		{
			name: "null icon in yaml is derived",
			files: map[string]string{
				"myaddon/manifest.yaml": "enabled: true\nicon: null\n",
				"myaddon/logo.png":      "png",
			},
			wantIcon: basePath + "myaddon/logo.png",
			hasIcon:  true,
		},
		{
			name: "true icon passes through",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true, "icon": true}`,
				"myaddon/logo.png":      "png",
			},
			hasIcon: false,
		},
		{
			name: "no icon files",
			files: map[string]string{
				"myaddon/manifest.json": `{"enabled": true}`,
			},
			hasIcon: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, tt.files)

			manifest, err := Aggregate(AggregateOptions{Root: root, BasePath: basePath})
			require.NoError(t, err)
			require.Len(t, manifest, 1)

			icon, ok := manifest[0].Icon()
			require.Equal(t, tt.hasIcon, ok)
			assert.Equal(t, tt.wantIcon, icon)
		})
	}
}

func TestAggregateIcons(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"myaddon/manifest.json":             `{"enabled": true}`,
		"myaddon/logo.png":                  "REAL",
		"myaddon/images/logo.png":           "nested",
		"myaddon/node_modules/pkg/logo.png": "vendored",
		"other/manifest.json":               `{"enabled": true}`,
		"other/vendor/myaddon/logo.png":     "IMPOSTER",
		"explicit/manifest.json":            `{"enabled": true, "icon": "https://example.com/icon.svg"}`,
		"explicit/logo.png":                 "unused",
		"jpeg/manifest.yaml":                "enabled: true\n",
		"jpeg/logo.jpg":                     "jpg",
		"disabled/manifest.json":            `{"enabled": false}`,
		"disabled/logo.png":                 "disabled",
	})

	manifest, icons, err := AggregateIcons(AggregateOptions{Root: root, BasePath: basePath})
	require.NoError(t, err)
	require.Len(t, manifest, 4)

	assert.Equal(t, []Icon{
		{ID: "jpeg", Name: "logo.jpg", Source: filepath.Join(root, "jpeg", "logo.jpg")},
		{ID: "myaddon", Name: "logo.png", Source: filepath.Join(root, "myaddon", "logo.png")},
	}, icons)

	_, ok := manifest[3].Icon()
	assert.Equal(t, "other", manifest[3].ID())
	assert.False(t, ok)
}

func TestAggregate_malformed(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"good/manifest.json": `{"enabled": true}`,
		"bad/manifest.json":  `{"enabled": true,`,
	})

	_, err := Aggregate(AggregateOptions{Root: root})
	require.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "bad")
}

func TestAggregate_malformedDisabledStillFails(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"bad/manifest.json": `[true]`,
	})

	_, err := Aggregate(AggregateOptions{Root: root})
	require.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestAggregate_commentsAndYAML(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"commented/manifest.json": `{
	// shown in the add-on list
	"enabled": true,
	"name": "Commented", /* trailing comma below */
	"tags": ["a", "b",],
}`,
		"yamlish/manifest.yaml": "enabled: true\nname: From YAML\nversion: 2.1.0\n",
		"both/manifest.json":    `{"enabled": true, "name": "json wins"}`,
		"both/manifest.yaml":    "enabled: false\n",
	})

	manifest, err := Aggregate(AggregateOptions{Root: root})
	require.NoError(t, err)
	require.Len(t, manifest, 3)

	assert.Equal(t, "both", manifest[0].ID())
	assert.Equal(t, "json wins", manifest[0]["name"])
	assert.Equal(t, "commented", manifest[1].ID())
	assert.Equal(t, []any{"a", "b"}, manifest[1]["tags"])
	assert.Equal(t, "yamlish", manifest[2].ID())
	assert.Equal(t, "From YAML", manifest[2]["name"])
}

func TestAggregate_sortedByID(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"zeta/manifest.json":        `{"enabled": true}`,
		"alpha/manifest.json":       `{"enabled": true}`,
		"nested/mid/manifest.json":  `{"enabled": true}`,
		"disabled-a/manifest.json":  `{"enabled": false}`,
		"node_modules/manifest.json": `{"enabled": true}`,
	})

	manifest, err := Aggregate(AggregateOptions{Root: root})
	require.NoError(t, err)

	var ids []string
	for _, d := range manifest {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestAggregate_duplicateEnabledID(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/dup/manifest.json": `{"enabled": true}`,
		"b/dup/manifest.json": `{"enabled": true}`,
	})

	_, err := Aggregate(AggregateOptions{Root: root})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestWriteManifest(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"myaddon/manifest.json": `{"enabled": true, "name": "A <b>", "downloads": 12345678901234567890}`,
		"myaddon/logo.png":      "png",
	})

	manifest, err := Aggregate(AggregateOptions{Root: root, BasePath: basePath})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "dist", "addons.json")
	require.NoError(t, WriteManifest(out, manifest))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Contains(t, string(data), "\n\t{\n\t\t\"downloads\": 12345678901234567890,")
	assert.Contains(t, string(data), `"name": "A <b>"`)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "myaddon", decoded[0]["id"])
	assert.Equal(t, basePath+"myaddon/logo.png", decoded[0]["icon"])
	assert.NotContains(t, decoded[0], "enabled")
}

func TestWriteManifest_empty(t *testing.T) {
	out := filepath.Join(t.TempDir(), "addons.json")
	require.NoError(t, WriteManifest(out, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
