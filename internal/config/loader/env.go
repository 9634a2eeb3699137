package loader

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix scanned by NewEnvLoader("").
const DefaultEnvPrefix = "TRAINCONF_"

// EnvLoader loads configuration overrides from environment variables.
//
// A variable PREFIX_SOLVER__BASE_LR=0.2 becomes SOLVER.BASE_LR = 0.2: the
// prefix is stripped, a double underscore separates path segments and the
// value is parsed as a YAML literal.
type EnvLoader struct {
	prefix  string
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "TRAINCONF_").
func NewEnvLoader(prefix string) *EnvLoader {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvLoader{
		prefix:  prefix,
		environ: os.Environ,
	}
}

// Load reads environment variables and returns a configuration map.
// Empty values are kept as empty strings.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		if !strings.HasPrefix(env, l.prefix) {
			continue
		}

		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		path := l.envToPath(name)
		if path == "" {
			continue
		}
		setByPath(config, path, parseValue(value))
	}

	return config, nil
}

// envToPath converts PREFIX_SOLVER__BASE_LR to SOLVER.BASE_LR.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "__")
	for _, p := range parts {
		if p == "" {
			return ""
		}
	}
	return strings.Join(parts, ".")
}

// parseValue parses s as a YAML scalar or flow collection, falling back to
// the raw string.
func parseValue(s string) any {
	if s == "" {
		return s
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	n, err := normalize(v)
	if err != nil {
		return s
	}
	return n
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
