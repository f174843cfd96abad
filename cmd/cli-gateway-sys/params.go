// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// parseParams merges action parameters from a JSONC file and repeated
// --param key=value flags. Flag values win over file values so a file
// can serve as a template.
func parseParams(pairs []string, file string) (map[string]string, error) {
	params := make(map[string]string)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading params file: %w", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(jsonc.ToJSON(data), &decoded); err != nil {
			return nil, fmt.Errorf("parsing params file %s: %w", file, err)
		}
		for key, value := range decoded {
			switch typed := value.(type) {
			case string:
				params[key] = typed
			case bool:
				params[key] = fmt.Sprintf("%t", typed)
			case float64:
				params[key] = strings.TrimSuffix(fmt.Sprintf("%g", typed), ".0")
			default:
				return nil, fmt.Errorf("params file %s: key %q is not a scalar", file, key)
			}
		}
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("--param %q is not key=value", pair)
		}
		params[key] = value
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}
