package models

import "time"

// RequestContext is per-request metadata used for logs and events only.
type RequestContext struct {
	RequestID   string
	RequestedAt time.Time
	ClientIP    string
	UserAgent   string
	Host        string
}
