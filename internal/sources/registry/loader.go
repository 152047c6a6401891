package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of services.yaml
type Loader struct {
	filePath string
	lookup   func(string) (string, bool)
}

// NewLoader creates a new registry loader reading variables from the process environment
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
		lookup:   os.LookupEnv,
	}
}

// Load reads and parses the services.yaml file
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read services file: %w", err)
	}

	data = expandVariables(data, l.lookup)

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("failed to parse services yaml: %w", err)
	}

	return file, nil
}

// expandVariables replaces ${VAR} and $VAR references.
// Unset variables expand to an empty string.
// Example: url: ${PAYMENTS_URL} -> url: http://payments:3004
func expandVariables(data []byte, lookup func(string) (string, bool)) []byte {
	return []byte(os.Expand(string(data), func(name string) string {
		v, _ := lookup(name)
		return v
	}))
}
