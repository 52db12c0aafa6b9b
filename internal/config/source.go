package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ConfigSource describes where file-based settings came from. Environment
// variables always win over the file.
type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

type runtimeConfig struct {
	once   sync.Once
	err    error
	values map[string]string
	source ConfigSource
}

var fileConfig = &runtimeConfig{}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return fileConfig.source, nil
}

func ensureRuntimeConfigLoaded() error {
	fileConfig.once.Do(func() {
		fileConfig.values, fileConfig.source, fileConfig.err = readConfigFile()
	})
	return fileConfig.err
}

// resetRuntimeConfig forgets the loaded file so tests can point CONFIG_FILE
// elsewhere.
func resetRuntimeConfig() {
	fileConfig = &runtimeConfig{}
}

func readConfigFile() (map[string]string, ConfigSource, error) {
	source := ConfigSource{Phase: strings.TrimSpace(os.Getenv("CONFIG_PHASE"))}
	if source.Phase == "" {
		source.Phase = "local"
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join("config", "config-"+source.Phase+".yaml")
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return map[string]string{}, source, nil
		}
		return nil, source, fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, source, fmt.Errorf("parse config file %q: %w", path, err)
	}

	values := make(map[string]string)
	for key, value := range raw {
		if err := flatten(normalizeKeySegment(key), value, values); err != nil {
			return nil, source, fmt.Errorf("flatten config file %q: %w", path, err)
		}
	}

	source.Loaded = true
	source.Path = path
	if abs, err := filepath.Abs(path); err == nil {
		source.Path = abs
	}
	return values, source, nil
}

// flatten turns nested YAML into UPPER_SNAKE keys: chain.rpc_timeout becomes
// CHAIN_RPC_TIMEOUT. Lists become comma-separated values.
func flatten(prefix string, value any, out map[string]string) error {
	if prefix == "" {
		return nil
	}
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			if err := flatten(joinKey(prefix, key), child, out); err != nil {
				return err
			}
		}
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch item.(type) {
			case map[string]any, []any:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			case nil:
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				parts = append(parts, s)
			}
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
	default:
		out[prefix] = fmt.Sprint(typed)
	}
	return nil
}

func joinKey(prefix, key string) string {
	segment := normalizeKeySegment(key)
	if segment == "" {
		return ""
	}
	return prefix + "_" + segment
}

func normalizeKeySegment(raw string) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range strings.TrimSpace(raw) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingUnderscore = b.Len() > 0
			continue
		}
		if pendingUnderscore {
			b.WriteByte('_')
			pendingUnderscore = false
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}
	return strings.TrimSpace(fileConfig.values[key])
}
