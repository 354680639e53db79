package domain

import (
	"errors"
	"time"
)

// SampleSource identifies how a location fix was produced.
type SampleSource string

const (
	SourceDevice SampleSource = "device"
	SourceManual SampleSource = "manual"
)

var ErrInvalidCoordinates = errors.New("coordinates out of range")
var ErrIdentityMismatch = errors.New("identity does not match caller")
var ErrSampleNotFound = errors.New("location sample not found")

// LocationSample is the latest known position of one technician. Exactly one
// sample is retained per identity; a new ingest overwrites the previous one.
type LocationSample struct {
	Identity   int64        `json:"identity" bson:"_id"`
	Lat        float64      `json:"lat" bson:"lat"`
	Lng        float64      `json:"lng" bson:"lng"`
	AccuracyM  *float64     `json:"accuracy_m,omitempty" bson:"accuracy_m,omitempty"`
	Source     SampleSource `json:"source" bson:"source"`
	CapturedAt time.Time    `json:"captured_at" bson:"captured_at"`
	UpdatedAt  time.Time    `json:"updated_at" bson:"updated_at"`
}

// ValidCoordinates reports whether lat/lng fall inside the WGS84 ranges.
// NaN fails every comparison, so it is rejected here as well.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
