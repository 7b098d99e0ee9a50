// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/vpexport/internal/model"
)

// =============================================================================
// DATASET FILES
// =============================================================================

// datasetFile is the on-disk import format. Instance attributes are loosely
// typed: strings, numbers, person-name objects and multi-valued lists are
// all accepted and flattened to strings.
type datasetFile struct {
	DisplaySets []struct {
		UID       string           `json:"uid" yaml:"uid"`
		Instances []map[string]any `json:"instances" yaml:"instances"`
	} `json:"display_sets" yaml:"display_sets"`
}

// LoadDatasetFile reads a JSON or YAML dataset file.
func LoadDatasetFile(path string) ([]model.DisplaySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ParseDatasets(data, ext == ".yaml" || ext == ".yml")
}

// ParseDatasets decodes dataset file content.
func ParseDatasets(data []byte, isYAML bool) ([]model.DisplaySet, error) {
	var file datasetFile
	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode dataset file: %w", err)
	}

	sets := make([]model.DisplaySet, 0, len(file.DisplaySets))
	seen := make(map[string]bool)
	for i, raw := range file.DisplaySets {
		uid := strings.TrimSpace(raw.UID)
		if uid == "" {
			return nil, fmt.Errorf("display set %d has no uid", i)
		}
		if seen[uid] {
			return nil, fmt.Errorf("duplicate display set uid %q", uid)
		}
		seen[uid] = true

		ds := model.DisplaySet{UID: uid, Instances: make([]model.Instance, 0, len(raw.Instances))}
		for _, rawInst := range raw.Instances {
			ds.Instances = append(ds.Instances, model.Instance{Attributes: FlattenAttributes(rawInst)})
		}
		sets = append(sets, ds)
	}
	return sets, nil
}

// FlattenAttributes converts loosely typed attribute values to strings.
// Attributes whose value cannot be represented are dropped, which the
// resolver treats as absent.
func FlattenAttributes(raw map[string]any) map[string]string {
	attrs := make(map[string]string, len(raw))
	for name, value := range raw {
		if s, ok := flattenValue(value); ok {
			attrs[name] = s
		}
	}
	return attrs
}

func flattenValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case map[string]any:
		// Person names arrive as {"Alphabetic": "Doe^John", ...}
		for _, key := range []string{"Alphabetic", "Ideographic", "Phonetic"} {
			if s, ok := flattenValue(val[key]); ok && s != "" {
				return s, true
			}
		}
		if len(val) == 1 {
			for _, inner := range val {
				return flattenValue(inner)
			}
		}
		return "", false
	case []any:
		// Multi-valued attributes use the DICOM backslash separator
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := flattenValue(item); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, `\`), true
	}
	return "", false
}
