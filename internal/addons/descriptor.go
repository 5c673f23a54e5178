package addons

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	fieldEnabled = "enabled"
	fieldID      = "id"
	fieldIcon    = "icon"
)

// DefaultDescriptorNames lists descriptor file names in order of preference.
var DefaultDescriptorNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// Descriptor is the metadata an add-on declares about itself. Apart from the
// enabled flag, id and icon, fields are passed through untouched.
type Descriptor map[string]any

// ParseDescriptor decodes a descriptor, choosing the format from the file
// extension. JSON descriptors may contain comments and trailing commas.
func ParseDescriptor(name string, data []byte) (Descriptor, error) {
	var (
		desc Descriptor
		err  error
	)

	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &desc)
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		err = dec.Decode(&desc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, name, err)
	}

	if desc == nil {
		return nil, fmt.Errorf("%w: %s: not an object", ErrMalformedDescriptor, name)
	}

	return desc, nil
}

// Enabled reports whether the descriptor opts in to the build. Only a boolean
// true counts.
func (d Descriptor) Enabled() bool {
	enabled, ok := d[fieldEnabled].(bool)
	return ok && enabled
}

// ID returns the injected identity, empty before aggregation.
func (d Descriptor) ID() string {
	id, _ := d[fieldID].(string)
	return id
}

// Icon returns the icon reference. A null or empty icon counts as missing.
func (d Descriptor) Icon() (string, bool) {
	icon, ok := d[fieldIcon].(string)
	return icon, ok && icon != ""
}

// hasIcon reports whether the descriptor sets an icon. Like a truthiness test
// in the host, null, false, zero and the empty string all leave it unset.
func (d Descriptor) hasIcon() bool {
	switch v := d[fieldIcon].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}
