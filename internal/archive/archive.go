// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/jeranaias/vpexport/internal/model"
)

// Entry names inside every archive.
const (
	ImageEntry    = "image.jpg"
	MetadataEntry = "metadata.json"
)

// MimeType of the packaged blob.
const MimeType = "application/zip"

// Archive is a finished ZIP held in memory.
type Archive struct {
	data   []byte
	digest string
}

// Bytes returns the archive content.
func (a *Archive) Bytes() []byte {
	return a.data
}

// Len returns the archive size in bytes.
func (a *Archive) Len() int {
	return len(a.data)
}

// Digest returns the hex BLAKE3-256 of the archive.
func (a *Archive) Digest() string {
	return a.digest
}

// Packager builds archives. It holds no per-run state and is safe for
// concurrent use.
type Packager struct {
	compressMetadata bool
	now              func() time.Time
}

// NewPackager creates a Packager. compressMetadata deflates metadata.json;
// image.jpg is always stored since JPEG does not compress further.
func NewPackager(compressMetadata bool) *Packager {
	return &Packager{compressMetadata: compressMetadata, now: time.Now}
}

// Package writes img and md into a new archive.
func (p *Packager) Package(ctx context.Context, img model.EncodedImage, md model.ExportMetadata) (*Archive, error) {
	const op = "package"

	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(model.KindPackagingFailed, op, err)
	}
	if img.Len() == 0 {
		return nil, model.NewError(model.KindPackagingFailed, op, "image is empty")
	}

	meta, err := MarshalMetadata(md)
	if err != nil {
		return nil, model.WrapError(model.KindPackagingFailed, op, err)
	}

	modified := p.now()
	metaMethod := zip.Store
	if p.compressMetadata {
		metaMethod = zip.Deflate
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name   string
		method uint16
		data   []byte
	}{
		{ImageEntry, zip.Store, img.Data},
		{MetadataEntry, metaMethod, meta},
	}
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   e.method,
			Modified: modified,
		})
		if err != nil {
			zw.Close()
			return nil, model.NewError(model.KindPackagingFailed, op, "add %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			zw.Close()
			return nil, model.NewError(model.KindPackagingFailed, op, "write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, model.NewError(model.KindPackagingFailed, op, "finalize archive: %v", err)
	}
	if buf.Len() == 0 {
		return nil, model.NewError(model.KindPackagingFailed, op, "archive is empty")
	}

	sum := blake3.Sum256(buf.Bytes())
	return &Archive{data: buf.Bytes(), digest: hex.EncodeToString(sum[:])}, nil
}

// MarshalMetadata renders metadata.json: two-space indentation, field
// order fixed by ExportMetadata, no HTML escaping and no trailing newline.
func MarshalMetadata(md model.ExportMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(md); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
