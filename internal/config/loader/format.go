package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format decodes one document syntax into a nested map.
type Format interface {
	// Name identifies the format in errors.
	Name() string
	// Decode parses data into a mapping. Empty input decodes to an empty map.
	Decode(data []byte) (map[string]any, error)
}

// YAML decodes YAML documents. JSON documents are valid YAML and use it too.
type YAML struct{}

// Name implements Format.
func (YAML) Name() string { return "yaml" }

// Decode implements Format.
func (YAML) Decode(data []byte) (map[string]any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	v, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level document must be a mapping, got %T", raw)
	}
	return m, nil
}

// TOML decodes TOML documents.
type TOML struct{}

// Name implements Format.
func (TOML) Name() string { return "toml" }

// Decode implements Format.
func (TOML) Decode(data []byte) (map[string]any, error) {
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config == nil {
		return map[string]any{}, nil
	}
	v, err := normalize(config)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// FormatFor picks a format from the file extension.
// Unknown extensions are treated as YAML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML{}
	default:
		return YAML{}
	}
}

// normalize converts decoder output into map[string]any / []any trees.
func normalize(val any) (any, error) {
	switch v := val.(type) {
	case map[string]any:
		for key, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			v[key] = n
		}
		return v, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			s, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", key, key)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s, err)
			}
			out[s] = n
		}
		return out, nil
	case []any:
		for i, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			v[i] = n
		}
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return val, nil
	}
}
