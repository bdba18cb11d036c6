package secrets

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// FileLoader returns a Loader yielding base overlaid with the flat YAML map
// in path. Empty values in the file are ignored. With an empty path the
// loader yields base unchanged.
func FileLoader(path string, base map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := maps.Clone(base)
		if vals == nil {
			vals = make(map[string]string)
		}
		if path == "" {
			return vals, nil
		}
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var file map[string]string
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for k, s := range file {
			if s != "" {
				vals[k] = s
			}
		}
		return vals, nil
	}
}
