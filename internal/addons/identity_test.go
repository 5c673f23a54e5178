package addons

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDFromPath(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		want    ID
		wantErr bool
	}{
		{
			name: "top level add-on",
			rel:  "myaddon/index.js",
			want: "myaddon",
		},
		{
			name: "nested add-on uses immediate parent",
			rel:  "group/inner-addon/manifest.json",
			want: "inner-addon",
		},
		{
			name: "dots and underscores",
			rel:  "my_addon.v2/index.jsx",
			want: "my_addon.v2",
		},
		{
			name:    "file in source root",
			rel:     "index.js",
			wantErr: true,
		},
		{
			name:    "hidden folder",
			rel:     ".cache/index.js",
			wantErr: true,
		},
		{
			name:    "quote in folder name",
			rel:     "bad'name/index.js",
			wantErr: true,
		},
		{
			name:    "space in folder name",
			rel:     "bad name/index.js",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := IDFromPath(tt.rel)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, id)
		})
	}
}
