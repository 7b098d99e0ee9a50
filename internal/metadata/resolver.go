// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metadata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/storage"
)

// DisplaySetLookup yields the display sets bound to a viewport.
// viewport.Grid satisfies it.
type DisplaySetLookup interface {
	DisplaySetUIDs(id model.ViewportID) []string
}

// attributeChains lists the attributes read for each field, first match wins.
var attributeChains = map[model.Field][]string{
	model.FieldPatientName:     {"PatientName"},
	model.FieldPatientSex:      {"PatientSex"},
	model.FieldPatientPosition: {"PatientPosition"},
	model.FieldStudyDate:       {"StudyDate"},
	model.FieldMRN:             {"MRN", "PatientID"},
	model.FieldDescription:     {"StudyDescription", "Description"},
}

// Resolver builds ExportMetadata from the dataset store.
type Resolver struct {
	lookup   DisplaySetLookup
	store    storage.Store
	fields   []model.Field
	sentinel string
	logger   *slog.Logger
}

// New creates a Resolver. Empty fields selects every field; an empty
// sentinel selects model.SentinelNA. The required fields are always
// resolved.
func New(lookup DisplaySetLookup, store storage.Store, fields []model.Field, sentinel string, logger *slog.Logger) *Resolver {
	if sentinel == "" {
		sentinel = model.SentinelNA
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:   lookup,
		store:    store,
		fields:   normalizeFields(fields),
		sentinel: sentinel,
		logger:   logger,
	}
}

// Fields returns the fields the resolver populates in document order.
func (r *Resolver) Fields() []model.Field {
	return append([]model.Field(nil), r.fields...)
}

// Sentinel returns the placeholder used for missing attributes.
func (r *Resolver) Sentinel() string {
	return r.sentinel
}

// Resolve returns the metadata for viewport id.
func (r *Resolver) Resolve(ctx context.Context, id model.ViewportID) (model.ExportMetadata, error) {
	const op = "resolve metadata"

	uids := r.lookup.DisplaySetUIDs(id)
	if len(uids) == 0 {
		return model.ExportMetadata{}, model.NewError(model.KindNoDatasetBound, op,
			"viewport %s has no display set", id)
	}

	uid := uids[0]
	ds, err := r.store.DisplaySet(ctx, uid)
	switch {
	case errors.Is(err, storage.ErrDisplaySetNotFound):
		return model.ExportMetadata{}, model.NewError(model.KindDatasetNotFound, op,
			"display set %s not found", uid)
	case err != nil:
		return model.ExportMetadata{}, model.WrapError(model.KindUnexpected, op, err)
	}

	inst, ok := ds.FirstInstance()
	if !ok {
		return model.ExportMetadata{}, model.NewError(model.KindDatasetNotFound, op,
			"display set %s has no instances", uid)
	}

	r.logRecord(id, uid, inst)

	var md model.ExportMetadata
	for _, f := range r.fields {
		md = md.With(f, model.FirstAttribute(inst, attributeChains[f], r.sentinel))
	}
	return md, nil
}

// logRecord writes the raw record at debug level. Logging must never
// affect the export.
func (r *Resolver) logRecord(id model.ViewportID, uid string, inst model.Instance) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("metadata record log failed", "viewport", id, "panic", rec)
		}
	}()
	if !r.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	r.logger.Debug("resolved dataset record",
		"viewport", id,
		"display_set", uid,
		"attributes", inst.Attributes,
	)
}

func normalizeFields(fields []model.Field) []model.Field {
	if len(fields) == 0 {
		return append([]model.Field(nil), model.AllFields...)
	}
	want := make(map[model.Field]bool, len(fields)+len(model.RequiredFields))
	for _, f := range model.RequiredFields {
		want[f] = true
	}
	for _, f := range fields {
		want[f] = true
	}
	out := make([]model.Field, 0, len(want))
	for _, f := range model.AllFields {
		if want[f] {
			out = append(out, f)
		}
	}
	return out
}
