package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// keyCaseRestorer is implemented by configs holding maps whose keys are
// data, such as environment variable names, which viper lowercases.
type keyCaseRestorer interface {
	restoreKeyCase(raw map[string]any)
}

// restoreKeyCaseFromFile re-reads a YAML or JSON config file without viper
// and hands the raw document to cfg.
func restoreKeyCaseFromFile(cfg any, path string) error {
	r, ok := cfg.(keyCaseRestorer)
	if !ok || path == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	r.restoreKeyCase(raw)
	return nil
}

func (c *Config) restoreKeyCase(raw map[string]any) {
	ctx, _ := raw["context"].(map[string]any)
	if ctx == nil {
		return
	}
	if env, ok := ctx["env"].(map[string]any); ok {
		restoreKeys(c.Context.Env, env)
	}
	if tools, ok := ctx["tools"].(map[string]any); ok {
		restoreKeys(c.Context.Tools, tools)
		for name, settings := range tools {
			if m, ok := settings.(map[string]any); ok {
				restoreNested(c.Context.Tools[name], m)
			}
		}
	}
}

// restoreKeys renames the lowercased keys of m back to their spelling in
// raw. Values stay those of m, which include environment overrides.
func restoreKeys[V any](m map[string]V, raw map[string]any) {
	for key := range raw {
		lower := strings.ToLower(key)
		if lower == key {
			continue
		}
		if v, ok := m[lower]; ok {
			delete(m, lower)
			m[key] = v
		}
	}
}

func restoreNested(m map[string]any, raw map[string]any) {
	if m == nil {
		return
	}
	restoreKeys(m, raw)
	for key, rv := range raw {
		rm, ok := rv.(map[string]any)
		if !ok {
			continue
		}
		if sub, ok := m[key].(map[string]any); ok {
			restoreNested(sub, rm)
		}
	}
}
