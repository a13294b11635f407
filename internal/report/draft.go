package report

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Draft is the user-facing input for a new report. Unset fields receive
// defaults in Build.
type Draft struct {
	IncidentType  string
	Date          string
	Time          string
	Description   string
	ReporterPhone string

	// Latitude and Longitude are both required to override the fallback.
	Latitude  *float64
	Longitude *float64

	Images []Image
}

// Build assigns an ID and fills defaults:
//   - Date and Time from now (local wall clock of now)
//   - Location from FallbackLocation when coordinates are missing
//   - free text trimmed and NFC-normalized
//
// Build does not validate; call Validate on the result.
func (d Draft) Build(ids IDGenerator, now time.Time) IncidentReport {
	r := IncidentReport{
		ID:            ids.Generate(),
		IncidentType:  normalize(d.IncidentType),
		Date:          strings.TrimSpace(d.Date),
		Time:          strings.TrimSpace(d.Time),
		Description:   normalize(d.Description),
		ReporterPhone: normalize(d.ReporterPhone),
		Location:      FallbackLocation,
		Images:        append([]Image{}, d.Images...),
		CreatedAt:     now,
	}
	if r.Date == "" {
		r.Date = now.Format("2006-01-02")
	}
	if r.Time == "" {
		r.Time = now.Format("15:04")
	}
	if d.Latitude != nil && d.Longitude != nil {
		r.Location = Location{Latitude: *d.Latitude, Longitude: *d.Longitude}
	}
	return r
}

// NewImage wraps raw image bytes as an attachment.
func NewImage(ids IDGenerator, name, mimeType string, data []byte) Image {
	return Image{
		ID:   ids.Generate(),
		Data: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Name: name,
		Size: int64(len(data)),
	}
}

// DescriptionLength counts code points after NFC normalization, the unit
// DescriptionLimit is expressed in.
func DescriptionLength(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
