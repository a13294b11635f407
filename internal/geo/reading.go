// Package geo obtains location readings from an asynchronous, fallible
// position provider.
package geo

import (
	"strconv"
	"time"
)

// Measure is an optional numeric value. An invalid Measure renders as
// "N/A" and is never treated as zero.
type Measure struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Some returns a valid Measure.
func Some(v float64) Measure { return Measure{Value: v, Valid: true} }

// from converts an optional provider field.
func from(v *float64) Measure {
	if v == nil {
		return Measure{}
	}
	return Some(*v)
}

// Format renders the value with prec decimals, or "N/A".
func (m Measure) Format(prec int) string {
	if !m.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(m.Value, 'f', prec, 64)
}

// Reading is one location fix. Every location field may be missing;
// CapturedAt is always set.
type Reading struct {
	Latitude   Measure   `json:"latitude"`
	Longitude  Measure   `json:"longitude"`
	Accuracy   Measure   `json:"accuracy"`
	Altitude   Measure   `json:"altitude"`
	Heading    Measure   `json:"heading"`
	Speed      Measure   `json:"speed"`
	CapturedAt time.Time `json:"captured_at"`
}

// Unavailable returns a reading with no location data, stamped at.
func Unavailable(at time.Time) Reading {
	return Reading{CapturedAt: at}
}

// HasFix reports whether both coordinates are present.
func (r Reading) HasFix() bool {
	return r.Latitude.Valid && r.Longitude.Valid
}
