package vars

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// EnvironmentSet holds named environments, each a flat map of variable
// values. Dotenv files contribute one environment; JSON files may carry
// several keyed by name.
type EnvironmentSet map[string]map[string]string

func LoadEnvironments(path string) (EnvironmentSet, error) {
	if IsDotEnvPath(path) {
		return loadDotEnvEnvironment(path)
	}
	return loadJSONEnvironments(path)
}

// SelectEnv picks the environment to use: an explicit override first, the
// configured fallback second, and when the set holds exactly one environment
// that one wins by default. Matching is case-insensitive and the canonical
// name from the set is returned.
func SelectEnv(envs EnvironmentSet, override, fallback string) string {
	if name, ok := matchEnvName(envs, override); ok {
		return name
	}
	if name, ok := matchEnvName(envs, fallback); ok {
		return name
	}
	if len(envs) == 1 {
		for name := range envs {
			return name
		}
	}
	return ""
}

func EnvValues(envs EnvironmentSet, name string) map[string]string {
	canonical, ok := matchEnvName(envs, name)
	if !ok {
		return nil
	}
	return envs[canonical]
}

func matchEnvName(envs EnvironmentSet, name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if _, ok := envs[trimmed]; ok {
		return trimmed, true
	}
	for candidate := range envs {
		if strings.EqualFold(candidate, trimmed) {
			return candidate, true
		}
	}
	return "", false
}

func loadJSONEnvironments(path string) (EnvironmentSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read env file %s", path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse env file %s", path)
	}

	envs := make(EnvironmentSet)
	flat := make(map[string]string)
	for name, payload := range raw {
		nested, scalar, isNested, err := decodeEnvEntry(payload)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "env file %s: environment %q", path, name)
		}
		if isNested {
			envs[name] = nested
			continue
		}
		// scalar at the top level means the file is one flat environment
		flat[name] = scalar
	}
	if len(flat) > 0 {
		if len(envs) > 0 {
			return nil, errdef.New(
				errdef.CodeParse,
				"env file %s mixes flat values with named environments",
				path,
			)
		}
		envs[dotEnvDefaultName] = flat
	}
	return envs, nil
}

func decodeEnvEntry(payload json.RawMessage) (map[string]string, string, bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var inner map[string]any
		if err := dec.Decode(&inner); err != nil {
			return nil, "", false, err
		}
		values := make(map[string]string, len(inner))
		for key, v := range inner {
			s, ok := scalarString(v)
			if !ok {
				return nil, "", false, errdef.New(errdef.CodeParse, "key %q: value must be a scalar", key)
			}
			values[key] = s
		}
		return values, "", true, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", false, err
	}
	s, ok := scalarString(v)
	if !ok {
		return nil, "", false, errdef.New(errdef.CodeParse, "value must be a scalar or an object")
	}
	return nil, s, false, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
