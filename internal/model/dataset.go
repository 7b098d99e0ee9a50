// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// VIEWPORT AND DATASET REFERENCES
// =============================================================================

// ViewportID identifies a rendering slot. It is only meaningful while the
// session that created it is alive.
type ViewportID string

// String returns the identifier as a plain string.
func (id ViewportID) String() string {
	return string(id)
}

// DisplaySet is a resolved dataset: a group of structured instances shown in
// a viewport.
type DisplaySet struct {
	UID       string     `json:"uid" yaml:"uid"`
	Instances []Instance `json:"instances" yaml:"instances"`
}

// FirstInstance returns the primary record of the display set.
func (ds *DisplaySet) FirstInstance() (Instance, bool) {
	if ds == nil || len(ds.Instances) == 0 {
		return Instance{}, false
	}
	return ds.Instances[0], true
}

// Instance is one structured record within a display set.
type Instance struct {
	Attributes map[string]string `json:"attributes" yaml:"attributes"`
}

// Attribute returns the named attribute, or fallback when it is absent or
// blank.
func (i Instance) Attribute(name, fallback string) string {
	return Attribute(i, name, fallback)
}

// Attribute is the single accessor used to read instance attributes.
// Values are trimmed; an empty result falls back.
func Attribute(inst Instance, name, fallback string) string {
	if inst.Attributes == nil {
		return fallback
	}
	v, ok := inst.Attributes[name]
	if !ok {
		return fallback
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

// FirstAttribute returns the first non-blank attribute out of names, or
// fallback when none is present.
func FirstAttribute(inst Instance, names []string, fallback string) string {
	for _, name := range names {
		if v := Attribute(inst, name, ""); v != "" {
			return v
		}
	}
	return fallback
}
