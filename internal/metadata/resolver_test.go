// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metadata

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/storage"
)

type lookupMap map[model.ViewportID][]string

func (l lookupMap) DisplaySetUIDs(id model.ViewportID) []string {
	return l[id]
}

type failingStore struct{ err error }

func (s failingStore) DisplaySet(context.Context, string) (*model.DisplaySet, error) {
	return nil, s.err
}

func newStore() *storage.MemoryStore {
	return storage.NewMemoryStore(
		model.DisplaySet{UID: "full", Instances: []model.Instance{
			{Attributes: map[string]string{
				"PatientName":      "John Doe",
				"PatientSex":       "M",
				"PatientPosition":  "HFS",
				"StudyDate":        "20240101",
				"PatientID":        "12345",
				"StudyDescription": "CT HEAD",
			}},
			{Attributes: map[string]string{"PatientName": "Ignored"}},
		}},
		model.DisplaySet{UID: "partial", Instances: []model.Instance{
			{Attributes: map[string]string{"PatientName": "John Doe", "StudyDate": "   "}},
		}},
		model.DisplaySet{UID: "empty"},
	)
}

func TestResolve_AllFields(t *testing.T) {
	r := New(lookupMap{"vp": {"full", "partial"}}, newStore(), nil, "", nil)

	md, err := r.Resolve(context.Background(), "vp")
	require.NoError(t, err)
	require.Equal(t, model.ExportMetadata{
		PatientName:     "John Doe",
		PatientSex:      "M",
		PatientPosition: "HFS",
		StudyDate:       "20240101",
		MRN:             "12345",
		Description:     "CT HEAD",
	}, md)
}

func TestResolve_RequiredOnly(t *testing.T) {
	r := New(lookupMap{"vp": {"full"}}, newStore(), model.RequiredFields, "", nil)

	md, err := r.Resolve(context.Background(), "vp")
	require.NoError(t, err)
	require.Equal(t, model.ExportMetadata{PatientName: "John Doe", StudyDate: "20240101"}, md)
}

func TestResolve_SentinelSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		sentinel string
		want     string
	}{
		{"default sentinel", "", model.SentinelNA},
		{"custom sentinel", model.SentinelUnknown, model.SentinelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(lookupMap{"vp": {"partial"}}, newStore(), nil, tt.sentinel, nil)
			md, err := r.Resolve(context.Background(), "vp")
			require.NoError(t, err)
			require.Equal(t, "John Doe", md.PatientName)
			require.Equal(t, tt.want, md.StudyDate)
			require.Equal(t, tt.want, md.PatientSex)
			require.Equal(t, tt.want, md.MRN)
		})
	}
}

func TestResolve_MRNPrefersExplicitAttribute(t *testing.T) {
	store := storage.NewMemoryStore(model.DisplaySet{UID: "ds", Instances: []model.Instance{
		{Attributes: map[string]string{"MRN": "MRN-1", "PatientID": "PID-1"}},
	}})
	r := New(lookupMap{"vp": {"ds"}}, store, []model.Field{model.FieldMRN}, "", nil)

	md, err := r.Resolve(context.Background(), "vp")
	require.NoError(t, err)
	require.Equal(t, "MRN-1", md.MRN)
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name   string
		lookup lookupMap
		store  storage.Store
		want   error
	}{
		{"no display sets", lookupMap{"vp": nil}, newStore(), model.ErrNoDatasetBound},
		{"unknown viewport", lookupMap{}, newStore(), model.ErrNoDatasetBound},
		{"missing display set", lookupMap{"vp": {"gone"}}, newStore(), model.ErrDatasetNotFound},
		{"no instances", lookupMap{"vp": {"empty"}}, newStore(), model.ErrDatasetNotFound},
		{"store failure", lookupMap{"vp": {"full"}}, failingStore{errors.New("disk on fire")}, model.ErrUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.lookup, tt.store, nil, "", nil)
			_, err := r.Resolve(context.Background(), "vp")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolve_LogsRawRecordAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(lookupMap{"vp": {"full"}}, newStore(), nil, "", logger)

	_, err := r.Resolve(context.Background(), "vp")
	require.NoError(t, err)
	require.True(t, strings.Contains(buf.String(), "resolved dataset record"), buf.String())
	require.True(t, strings.Contains(buf.String(), "display_set=full"), buf.String())
}

func TestNormalizeFields(t *testing.T) {
	got := normalizeFields([]model.Field{model.FieldDescription, model.FieldMRN})
	require.Equal(t, []model.Field{
		model.FieldPatientName, model.FieldStudyDate, model.FieldMRN, model.FieldDescription,
	}, got)

	require.Equal(t, model.AllFields, normalizeFields(nil))
}
