// config.go: key/value configuration surface for the registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Configuration supplies the key/value lookups the registry consumes.
// Keys are dotted paths ("driver.dir"); multi-valued keys return every
// configured value in order.
type Configuration interface {
	// GetString returns the value for key, or def when unset.
	GetString(key string, def string) string

	// GetStrings returns every value configured for a multi-valued key.
	// A scalar value yields a single-element slice; unset yields nil.
	GetStrings(key string) []string

	// GetBool returns the boolean value for key, or def when unset or
	// not parseable as a boolean.
	GetBool(key string, def bool) bool
}

// MapConfiguration is a thread-safe, map-backed Configuration.
type MapConfiguration struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapConfiguration creates an empty configuration.
func NewMapConfiguration() *MapConfiguration {
	return &MapConfiguration{values: make(map[string]any)}
}

// Set stores a value under a dotted key, replacing any previous value.
// Slices become multi-valued keys.
func (c *MapConfiguration) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// GetString implements Configuration.
func (c *MapConfiguration) GetString(key string, def string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetStrings implements Configuration.
func (c *MapConfiguration) GetStrings(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		return []string{s}
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// GetBool implements Configuration.
func (c *MapConfiguration) GetBool(key string, def bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// LoadConfiguration reads a configuration file and flattens it into
// dotted keys. The format is detected from the file extension; JSON and
// YAML are supported.
//
// A document such as
//
//	driver:
//	  dir: ["/opt/a", "/opt/b"]
//	  skip-default: true
//
// yields the keys "driver.dir" and "driver.skip-default".
func LoadConfiguration(path string) (*MapConfiguration, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- caller-supplied config path
	if err != nil {
		return nil, NewConfigFileError(path, "failed to read config file", err)
	}

	var raw map[string]any
	format := argus.DetectFormat(cleanPath)
	switch format {
	case argus.FormatJSON:
		err = json.Unmarshal(data, &raw)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, NewConfigParseError(path,
			fmt.Errorf("unsupported config format: %s", format.String()))
	}
	if err != nil {
		return nil, NewConfigParseError(path, err)
	}

	config := NewMapConfiguration()
	flattenInto(config, "", raw)
	return config, nil
}

// flattenInto walks nested maps, joining keys with dots. Leaf values are
// stored as-is so multi-valued keys keep their slice shape.
func flattenInto(config *MapConfiguration, prefix string, value map[string]any) {
	for key, v := range value {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(config, full, nested)
			continue
		}
		config.Set(full, v)
	}
}
