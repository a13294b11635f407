package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/readykit/internal/fault"
)

var created = time.Date(2026, 7, 14, 9, 30, 15, 0, time.UTC)

func floodingDraft() Draft {
	lat, lon := 13.06, 123.52
	return Draft{
		IncidentType: "Flooding",
		Description:  "Knee-deep water on the main road",
		Latitude:     &lat,
		Longitude:    &lon,
	}
}

func TestBuild_Defaults(t *testing.T) {
	r := Draft{IncidentType: "Fire", Description: "  smoke  "}.Build(NewFixedGenerator("r-1"), created)

	assert.Equal(t, "r-1", r.ID)
	assert.Equal(t, "2026-07-14", r.Date)
	assert.Equal(t, "09:30", r.Time)
	assert.Equal(t, "smoke", r.Description)
	assert.Equal(t, FallbackLocation, r.Location)
	assert.Equal(t, created, r.CreatedAt)
	assert.NotNil(t, r.Images)
}

func TestBuild_ExplicitLocationAndDate(t *testing.T) {
	d := floodingDraft()
	d.Date, d.Time = "2026-07-13", "23:59"
	r := d.Build(NewFixedGenerator("r-1"), created)

	assert.Equal(t, Location{Latitude: 13.06, Longitude: 123.52}, r.Location)
	assert.Equal(t, "2026-07-13", r.Date)
	assert.Equal(t, "23:59", r.Time)
}

func TestBuild_HalfLocationUsesFallback(t *testing.T) {
	lat := 1.0
	r := Draft{IncidentType: "Other", Description: "x", Latitude: &lat}.Build(NewFixedGenerator("r-1"), created)
	assert.Equal(t, FallbackLocation, r.Location)
}

func TestBuild_NormalizesToNFC(t *testing.T) {
	// "e" + combining acute accent composes to a single code point.
	r := Draft{IncidentType: "Other", Description: "cafe\u0301"}.Build(NewFixedGenerator("r-1"), created)
	assert.Equal(t, "caf\u00e9", r.Description)
}

func TestMarshal_WireFormat(t *testing.T) {
	r := floodingDraft().Build(NewFixedGenerator("r-1"), created)
	r.Images = nil

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.Equal(t, "Flooding", wire["incidentType"])
	assert.Equal(t, []any{}, wire["images"])
	assert.Equal(t, "2026-07-14T09:30:15Z", wire["timestamp"])
	assert.NotContains(t, wire, "reporter_phone")
	assert.Equal(t, map[string]any{"latitude": 13.06, "longitude": 123.52}, wire["location"])
}

func TestNewImage_DataURL(t *testing.T) {
	img := NewImage(NewFixedGenerator("img-1"), "photo.jpg", "image/jpeg", []byte("abc"))

	assert.Equal(t, "img-1", img.ID)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", img.Data)
	assert.Equal(t, int64(3), img.Size)
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_SortableAndUnique(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}

func TestValidate_Accepts(t *testing.T) {
	r := floodingDraft().Build(NewFixedGenerator("r-1", "img-1"), created)
	r.ReporterPhone = "+63 917 555 0101"
	r.Images = []Image{NewImage(NewFixedGenerator("img-1"), "a.jpg", "image/jpeg", []byte{0xff, 0xd8})}

	assert.NoError(t, Validate(r))
}

func TestValidate_Rejects(t *testing.T) {
	base := func() IncidentReport {
		return floodingDraft().Build(NewFixedGenerator("r-1"), created)
	}

	tests := []struct {
		name   string
		mutate func(*IncidentReport)
	}{
		{"unknown type", func(r *IncidentReport) { r.IncidentType = "Meteor" }},
		{"empty type", func(r *IncidentReport) { r.IncidentType = "" }},
		{"empty description", func(r *IncidentReport) { r.Description = "" }},
		{"description too long", func(r *IncidentReport) { r.Description = strings.Repeat("a", DescriptionLimit+1) }},
		{"bad date", func(r *IncidentReport) { r.Date = "14/07/2026" }},
		{"bad time", func(r *IncidentReport) { r.Time = "25:00" }},
		{"latitude out of range", func(r *IncidentReport) { r.Location.Latitude = 91 }},
		{"longitude out of range", func(r *IncidentReport) { r.Location.Longitude = -181 }},
		{"empty id", func(r *IncidentReport) { r.ID = "" }},
		{"image without data", func(r *IncidentReport) {
			r.Images = []Image{{ID: "i", Data: "", Name: "a.jpg"}}
		}},
		{"bad phone", func(r *IncidentReport) { r.ReporterPhone = "call me" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			err := Validate(r)
			require.Error(t, err)
			assert.True(t, fault.IsValidation(err), "got %v", err)
		})
	}
}

func TestValidate_LimitCountsCodePoints(t *testing.T) {
	r := floodingDraft().Build(NewFixedGenerator("r-1"), created)

	// 500 multi-byte code points are within the limit.
	r.Description = strings.Repeat("\u00f1", DescriptionLimit)
	assert.NoError(t, Validate(r))

	// Decomposed input is measured after composition.
	r.Description = strings.Repeat("n\u0303", DescriptionLimit)
	assert.NoError(t, Validate(r))
	assert.Equal(t, DescriptionLimit, DescriptionLength(r.Description))
}

func TestValidator_ConcurrentUse(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	r := floodingDraft().Build(NewFixedGenerator("r-1"), created)
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- v.Validate(r) }()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
