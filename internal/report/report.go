// Package report defines the incident report data model, its identifiers
// and its validation rules.
package report

import (
	"encoding/json"
	"time"
)

// IncidentType names a category of incident.
type IncidentType = string

// Known incident types, in the order they are offered to the reporter.
var IncidentTypes = []IncidentType{
	"Flooding",
	"Landslide",
	"Fire",
	"Road Accident",
	"Building Collapse",
	"Power Outage",
	"Medical Emergency",
	"Typhoon Damage",
	"Other",
}

// DescriptionLimit is the maximum description length in code points,
// counted after NFC normalization.
const DescriptionLimit = 500

// FallbackLocation is used when the reporter supplies no coordinates.
var FallbackLocation = Location{Latitude: 13.0547, Longitude: 123.5214}

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Image is an attached photo, carried inline as a data URL.
type Image struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// IncidentReport is a single report as submitted to the remote service.
//
// The JSON form is the wire format: field names match the remote API and
// CreatedAt travels as "timestamp".
type IncidentReport struct {
	ID            string    `json:"id"`
	IncidentType  string    `json:"incidentType"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Description   string    `json:"description"`
	ReporterPhone string    `json:"reporter_phone,omitempty"`
	Location      Location  `json:"location"`
	Images        []Image   `json:"images"`
	CreatedAt     time.Time `json:"timestamp"`
}

// MarshalJSON always emits images as an array, never null.
func (r IncidentReport) MarshalJSON() ([]byte, error) {
	type wire IncidentReport
	w := wire(r)
	if w.Images == nil {
		w.Images = []Image{}
	}
	return json.Marshal(w)
}
