package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLFile decodes a standalone YAML file into dst, for settings too
// large or too structural to live inline in the main viper config file
// (e.g. a list of inference centroids or a topology description), the way
// loader.serialization.go's Serialization type is itself typically loaded
// from its own YAML document rather than being hand-built in Go.
func LoadYAMLFile(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(dst); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return nil
}
