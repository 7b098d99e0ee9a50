// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/jeranaias/vpexport/internal/model"
)

// EntryInfo describes one archive entry.
type EntryInfo struct {
	Name             string
	Method           uint16
	CompressedSize   uint64
	UncompressedSize uint64
}

// Contents is an unpacked archive.
type Contents struct {
	Entries      []EntryInfo
	Image        []byte
	MetadataJSON []byte
	Metadata     model.ExportMetadata
	Digest       string
}

// Open unpacks an archive produced by Package. It fails when either
// entry is missing or metadata.json does not parse.
func Open(blob []byte) (*Contents, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	sum := blake3.Sum256(blob)
	c := &Contents{Digest: hex.EncodeToString(sum[:])}
	for _, f := range zr.File {
		c.Entries = append(c.Entries, EntryInfo{
			Name:             f.Name,
			Method:           f.Method,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
		})
		switch f.Name {
		case ImageEntry:
			c.Image, err = readEntry(f)
		case MetadataEntry:
			c.MetadataJSON, err = readEntry(f)
		}
		if err != nil {
			return nil, err
		}
	}

	if c.Image == nil {
		return nil, fmt.Errorf("archive has no %s", ImageEntry)
	}
	if c.MetadataJSON == nil {
		return nil, fmt.Errorf("archive has no %s", MetadataEntry)
	}
	if err := json.Unmarshal(c.MetadataJSON, &c.Metadata); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataEntry, err)
	}
	return c, nil
}

// Inspect opens the archive file at path.
func Inspect(path string) (*Contents, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(blob)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// MethodName returns a short label for a compression method.
func MethodName(method uint16) string {
	switch method {
	case zip.Store:
		return "stored"
	case zip.Deflate:
		return "deflated"
	}
	return fmt.Sprintf("method %d", method)
}
