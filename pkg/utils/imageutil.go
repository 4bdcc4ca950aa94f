package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrInvalidDataURI = errors.New("invalid image data URI")

var dataURIPattern = regexp.MustCompile(`(?is)^data:(image/[a-z0-9.+-]+);base64,(.+)$`)

// ParseDataURI decodes a "data:image/<type>;base64,<data>" string into its
// normalized MIME type and raw bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	m := dataURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil {
		return "", nil, ErrInvalidDataURI
	}

	payload := stripWhitespace(m[2])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	return NormalizeMimeType(m[1]), data, nil
}

// EncodeDataURI is the inverse of ParseDataURI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// NormalizeMimeType lower-cases a content type, drops parameters and maps the
// non-standard image/jpg alias to image/jpeg.
func NormalizeMimeType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" || ct == "image/pjpeg" {
		return "image/jpeg"
	}
	return ct
}

// MimeTypeFromExtension returns the image type implied by a file name, or ""
// when the extension is not a known image extension.
func MimeTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".jpe":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return ""
	}
}

// IsAllowedImageType reports whether contentType is one of allowed, ignoring
// case, parameters and the jpg alias.
func IsAllowedImageType(contentType string, allowed []string) bool {
	ct := NormalizeMimeType(contentType)
	for _, a := range allowed {
		if ct == NormalizeMimeType(a) {
			return true
		}
	}
	return false
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
