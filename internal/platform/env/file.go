package env

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a flat YAML mapping of KEY: value pairs and exports every key
// that is not already present in the process environment. Explicit environment
// variables always win over the file.
//
// Scalars are rendered with their YAML text, so `WF_WEBHOOK_TIMEOUT: 5s` and
// `WF_DATABASE_MIGRATE: false` behave exactly like their env counterparts.
func LoadFile(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	values, err := ParseFile(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	applied := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, values[key]); err != nil {
			return applied, fmt.Errorf("set %s: %w", key, err)
		}
		applied = append(applied, key)
	}
	return applied, nil
}

// ParseFile decodes the config file body. Nested mappings and sequences are
// rejected because every value must map onto a single env variable.
func ParseFile(raw []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	out := map[string]string{}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("config must be a mapping of KEY: value")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		key := strings.TrimSpace(keyNode.Value)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", keyNode.Line)
		}
		if valueNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: %s must be a scalar", valueNode.Line, key)
		}
		if valueNode.Tag == "!!null" {
			out[key] = ""
			continue
		}
		out[key] = valueNode.Value
	}
	return out, nil
}
