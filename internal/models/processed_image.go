package models

import "time"

const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
)

// IncomingImage is an upload as received, before validation.
type IncomingImage struct {
	Bytes        []byte
	MimeType     string
	SizeBytes    int64
	OriginalName string
}

// ProcessedImage is the remover's output. MimeType is always image/png.
type ProcessedImage struct {
	Bytes       []byte
	MimeType    string
	ProcessedAt time.Time
	Duration    time.Duration
}

func (p *ProcessedImage) SizeBytes() int64 {
	return int64(len(p.Bytes))
}
