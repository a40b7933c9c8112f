package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"titanflow/internal/config"
	"titanflow/internal/domain"
)

// ConfigOptions holds options for the config command.
type ConfigOptions struct {
	ConfigPath string
	Action     string // "get", "set" or "unset"
	Path       string // dot notation, e.g. "tools.poolSize"
	Value      string // for set
}

// RunConfig reads or edits one config field. Edits are validated against
// the config schema before the file is rewritten. Returns an exit code.
func RunConfig(opts ConfigOptions, stdout, stderr io.Writer) int {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = config.Path()
	}
	cfg, err := configLoad(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg = config.Default()
	}
	tree, err := toTree(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	parts := strings.Split(opts.Path, ".")

	switch opts.Action {
	case "get":
		value, ok := getValueAtPath(tree, parts)
		if !ok {
			fmt.Fprintf(stderr, "Error: path %q not found in config\n", opts.Path)
			return 1
		}
		printValue(stdout, value)
		return 0
	case "set":
		err = setValueAtPath(tree, parts, parseValue(opts.Value))
	case "unset":
		err = unsetValueAtPath(tree, parts)
	default:
		fmt.Fprintf(stderr, "Error: unknown action %q (use 'get', 'set', or 'unset')\n", opts.Action)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	updated, err := fromTree(tree)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", opts.Path, err)
		return 1
	}
	if err := configSave(cfgPath, updated); err != nil {
		fmt.Fprintf(stderr, "Error: failed to save config: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func toTree(cfg *domain.Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// fromTree decodes tree strictly so misspelled keys and wrong types are rejected.
func fromTree(tree map[string]any) (*domain.Config, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg domain.Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseValue reads value as a number, bool or JSON array/object, else a string.
func parseValue(value string) any {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if strings.HasPrefix(value, "[") || strings.HasPrefix(value, "{") {
		var v any
		if json.Unmarshal([]byte(value), &v) == nil {
			return v
		}
	}
	return value
}

func printValue(w io.Writer, value any) {
	switch v := value.(type) {
	case string:
		fmt.Fprintln(w, v)
	case float64:
		if v == float64(int64(v)) {
			fmt.Fprintf(w, "%d\n", int64(v))
		} else {
			fmt.Fprintf(w, "%g\n", v)
		}
	case bool:
		fmt.Fprintf(w, "%t\n", v)
	default:
		data, _ := json.Marshal(v)
		fmt.Fprintln(w, string(data))
	}
}

func getValueAtPath(data map[string]any, path []string) (any, bool) {
	value, ok := data[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return value, true
	}
	next, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return getValueAtPath(next, path[1:])
}

func setValueAtPath(data map[string]any, path []string, value any) error {
	if path[0] == "" {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		data[path[0]] = value
		return nil
	}
	next, ok := data[path[0]].(map[string]any)
	if !ok {
		next = make(map[string]any)
		data[path[0]] = next
	}
	return setValueAtPath(next, path[1:], value)
}

func unsetValueAtPath(data map[string]any, path []string) error {
	if path[0] == "" {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		delete(data, path[0])
		return nil
	}
	next, ok := data[path[0]].(map[string]any)
	if !ok {
		return fmt.Errorf("path %q not found", strings.Join(path, "."))
	}
	return unsetValueAtPath(next, path[1:])
}
