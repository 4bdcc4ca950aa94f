package validator

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/pkg/utils"
)

const (
	MsgNoFile          = "No file uploaded"
	MsgContentMismatch = "File content does not match an allowed image type"
	MsgCorruptImage    = "Image data is corrupt or truncated"

	// DefaultMaxPixels bounds the decoded size of an upload; 40 megapixels
	// decode to about 160MB of RGBA.
	DefaultMaxPixels = 40_000_000
)

type ImageValidator struct {
	maxSize      int64
	maxPixels    int64
	allowedTypes []string
}

func NewImageValidator(maxSize int64, allowedTypes []string) *ImageValidator {
	return &ImageValidator{
		maxSize:      maxSize,
		maxPixels:    DefaultMaxPixels,
		allowedTypes: allowedTypes,
	}
}

// WithMaxPixels overrides the width×height limit. n <= 0 keeps the default.
func (v *ImageValidator) WithMaxPixels(n int64) *ImageValidator {
	if n > 0 {
		v.maxPixels = n
	}
	return v
}

func (v *ImageValidator) MaxSize() int64 {
	return v.maxSize
}

// SizeExceededMessage is the client-facing text for an upload over the limit.
func (v *ImageValidator) SizeExceededMessage() string {
	return "File size exceeds " + formatLimit(v.maxSize) + " limit"
}

// Validate checks presence, size, declared type, extension, the sniffed
// content and the header dimensions of img. Dimensions are read without
// decoding pixels. On success img.MimeType holds the detected type.
func (v *ImageValidator) Validate(img *models.IncomingImage) error {
	if img == nil || len(img.Bytes) == 0 {
		return apperror.Validation(MsgNoFile)
	}

	size := img.SizeBytes
	if n := int64(len(img.Bytes)); n > size {
		size = n
	}
	if size > v.maxSize {
		return apperror.Validation(v.SizeExceededMessage())
	}

	declared := utils.NormalizeMimeType(img.MimeType)
	if declared == "" || declared == "application/octet-stream" {
		declared = utils.MimeTypeFromExtension(img.OriginalName)
	}
	if !utils.IsAllowedImageType(declared, v.allowedTypes) {
		return apperror.Validation(invalidTypeMessage(img.MimeType, declared))
	}

	if byExt := utils.MimeTypeFromExtension(img.OriginalName); byExt != "" && !utils.IsAllowedImageType(byExt, v.allowedTypes) {
		return apperror.Validation(invalidTypeMessage(byExt, byExt))
	}

	detected := utils.NormalizeMimeType(mimetype.Detect(img.Bytes).String())
	if !utils.IsAllowedImageType(detected, v.allowedTypes) {
		return apperror.Validation(MsgContentMismatch)
	}

	dims, _, err := image.DecodeConfig(bytes.NewReader(img.Bytes))
	if err != nil {
		return apperror.Validation(MsgCorruptImage)
	}
	if pixels := int64(dims.Width) * int64(dims.Height); pixels > v.maxPixels {
		return apperror.Validation(fmt.Sprintf("Image dimensions %dx%d exceed the %s pixel limit",
			dims.Width, dims.Height, formatPixels(v.maxPixels)))
	}

	img.MimeType = detected
	img.SizeBytes = size
	return nil
}

func invalidTypeMessage(raw, normalized string) string {
	shown := raw
	if shown == "" {
		shown = normalized
	}
	if shown == "" {
		shown = "unknown"
	}
	return fmt.Sprintf("Invalid file type '%s'. Only jpg, jpeg, png are allowed.", shown)
}

func formatLimit(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + "MB"
	}
	if n >= mb {
		return strconv.FormatFloat(float64(n)/mb, 'f', 1, 64) + "MB"
	}
	return strconv.FormatInt(n/1024, 10) + "KB"
}

func formatPixels(n int64) string {
	if n >= 1_000_000 && n%1_000_000 == 0 {
		return strconv.FormatInt(n/1_000_000, 10) + " megapixel"
	}
	return strconv.FormatInt(n, 10)
}
