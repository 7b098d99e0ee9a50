// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// =============================================================================
// EXPORT METADATA
// =============================================================================

// Sentinel values substituted for absent attributes.
const (
	SentinelNA      = "N/A"
	SentinelUnknown = "Unknown"
)

// Field names a metadata.json field.
type Field string

const (
	FieldPatientName     Field = "PatientName"
	FieldPatientSex      Field = "PatientSex"
	FieldPatientPosition Field = "PatientPosition"
	FieldStudyDate       Field = "StudyDate"
	FieldMRN             Field = "MRN"
	FieldDescription     Field = "Description"
)

// RequiredFields are always present in metadata.json.
var RequiredFields = []Field{FieldPatientName, FieldStudyDate}

// AllFields lists every supported field in document order.
var AllFields = []Field{
	FieldPatientName,
	FieldPatientSex,
	FieldPatientPosition,
	FieldStudyDate,
	FieldMRN,
	FieldDescription,
}

// ParseField validates a configured field name.
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown metadata field %q", name)
}

// ExportMetadata is the record written to metadata.json. The struct field
// order is the document's key order. Optional fields are omitted when the
// deployment has not enabled them.
type ExportMetadata struct {
	PatientName     string `json:"PatientName"`
	PatientSex      string `json:"PatientSex,omitempty"`
	PatientPosition string `json:"PatientPosition,omitempty"`
	StudyDate       string `json:"StudyDate"`
	MRN             string `json:"MRN,omitempty"`
	Description     string `json:"Description,omitempty"`
}

// Get returns the value of a field.
func (m ExportMetadata) Get(f Field) string {
	switch f {
	case FieldPatientName:
		return m.PatientName
	case FieldPatientSex:
		return m.PatientSex
	case FieldPatientPosition:
		return m.PatientPosition
	case FieldStudyDate:
		return m.StudyDate
	case FieldMRN:
		return m.MRN
	case FieldDescription:
		return m.Description
	}
	return ""
}

// With returns a copy of m with field f set to v.
func (m ExportMetadata) With(f Field, v string) ExportMetadata {
	switch f {
	case FieldPatientName:
		m.PatientName = v
	case FieldPatientSex:
		m.PatientSex = v
	case FieldPatientPosition:
		m.PatientPosition = v
	case FieldStudyDate:
		m.StudyDate = v
	case FieldMRN:
		m.MRN = v
	case FieldDescription:
		m.Description = v
	}
	return m
}

// =============================================================================
// ENCODED IMAGE
// =============================================================================

// EncodedImage is a compressed raster ready to be packaged.
type EncodedImage struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	Quality  float64
}

// Len returns the encoded size in bytes.
func (e EncodedImage) Len() int {
	return len(e.Data)
}
