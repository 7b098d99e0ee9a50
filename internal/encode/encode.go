// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package encode compresses captured rasters to JPEG.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	"github.com/jeranaias/vpexport/internal/model"
)

// DefaultQuality is the highest JPEG quality.
const DefaultQuality = 1.0

// MimeType of every encoded image.
const MimeType = "image/jpeg"

// Encode compresses img at quality in [0, 1]. Transparent pixels come out
// black since JPEG has no alpha channel.
func Encode(img image.Image, quality float64) (model.EncodedImage, error) {
	const op = "encode"

	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		return model.EncodedImage{}, model.NewError(model.KindEncodingFailed, op,
			"quality %v is outside [0, 1]", quality)
	}
	if img == nil || img.Bounds().Empty() {
		return model.EncodedImage{}, model.NewError(model.KindEncodingFailed, op, "raster is empty")
	}

	q := JPEGQuality(quality)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return model.EncodedImage{}, model.WrapError(model.KindEncodingFailed, op, err)
	}
	if buf.Len() == 0 {
		return model.EncodedImage{}, model.NewError(model.KindEncodingFailed, op, "encoder produced no data")
	}

	b := img.Bounds()
	return model.EncodedImage{
		Data:     buf.Bytes(),
		MimeType: MimeType,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Quality:  quality,
	}, nil
}

// JPEGQuality maps a [0, 1] quality onto the encoder's 1..100 scale.
func JPEGQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
