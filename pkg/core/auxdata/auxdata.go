//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package auxdata loads a directory of site facts handed to Rego extensions
// as input.auxdata. Mounted from a Kubernetes ConfigMap, each key becomes
// one file.
//
// Files ending in .yaml, .yml or .json are decoded, so a policy can read
// lists such as input.auxdata["trusted.yaml"].organizations. Any other file
// is passed as a string.
package auxdata

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Key is the input field auxdata is merged under.
const Key = "auxdata"

// LoadAuxData reads every regular, non-hidden file of path into a map keyed
// by file name. An empty path yields nil.
func LoadAuxData(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read auxdata directory %s", path)
	}

	result := make(map[string]interface{})
	for _, entry := range entries {
		name := entry.Name()
		// ConfigMap mounts carry ..data style metadata entries.
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(path, name)) // #nosec G304 -- configured directory
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read auxdata file %s", name)
		}

		v, err := decode(name, raw)
		if err != nil {
			return nil, err
		}
		result[name] = v
	}

	return result, nil
}

func decode(name string, raw []byte) (interface{}, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		// JSON is a subset of YAML.
		var v interface{}
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrapf(err, "failed to decode auxdata file %s", name)
		}
		return v, nil
	default:
		return string(raw), nil
	}
}

// MergeAuxData sets input[Key] to auxdata when auxdata is not empty and
// returns input.
func MergeAuxData(input map[string]interface{}, auxdata map[string]interface{}) map[string]interface{} {
	if len(auxdata) == 0 || input == nil {
		return input
	}
	input[Key] = auxdata
	return input
}
