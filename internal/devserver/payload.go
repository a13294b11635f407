package devserver

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/readykit/internal/report"
)

// newID assigns IDs to payloads that arrive without one.
var newID = uuid.NewString

// incidentPayload accepts both the current client contract and the older
// flat form.
type incidentPayload struct {
	ID                string           `json:"id"`
	IncidentType      string           `json:"incidentType"`
	IncidentTypeSnake string           `json:"incident_type"`
	Date              string           `json:"date"`
	Time              string           `json:"time"`
	Latitude          *float64         `json:"latitude"`
	Longitude         *float64         `json:"longitude"`
	Location          *report.Location `json:"location"`
	Description       string           `json:"description"`
	Images            []report.Image   `json:"images"`
	ReporterPhone     string           `json:"reporter_phone"`
	Phone             string           `json:"phone"`
	Timestamp         string           `json:"timestamp"`
}

var (
	errTypeRequired     = errors.New("incident_type is required")
	errLocationRequired = errors.New("location (latitude/longitude) is required")
)

// normalize maps the payload onto the canonical report. now fills in
// whatever the payload leaves out.
func (p incidentPayload) normalize(now time.Time) (report.IncidentReport, error) {
	incidentType := p.IncidentTypeSnake
	if incidentType == "" {
		incidentType = p.IncidentType
	}
	if strings.TrimSpace(incidentType) == "" {
		return report.IncidentReport{}, errTypeRequired
	}

	lat, lng := p.Latitude, p.Longitude
	if p.Location != nil {
		lat, lng = &p.Location.Latitude, &p.Location.Longitude
	}
	if lat == nil || lng == nil {
		return report.IncidentReport{}, errLocationRequired
	}

	created := now.UTC()
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			created = ts
		}
	}

	date, clock := p.Date, p.Time
	if (date == "" || clock == "") && p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			if date == "" {
				date = ts.Format("2006-01-02")
			}
			if clock == "" {
				clock = ts.Format("15:04")
			}
		}
	}
	if date == "" {
		date = now.UTC().Format("2006-01-02")
	}
	if clock == "" {
		clock = now.UTC().Format("15:04")
	}

	phone := p.ReporterPhone
	if phone == "" {
		phone = p.Phone
	}
	id := p.ID
	if id == "" {
		id = newID()
	}
	images := p.Images
	if images == nil {
		images = []report.Image{}
	}

	return report.IncidentReport{
		ID:            id,
		IncidentType:  incidentType,
		Date:          date,
		Time:          clock,
		Description:   p.Description,
		ReporterPhone: phone,
		Location:      report.Location{Latitude: *lat, Longitude: *lng},
		Images:        images,
		CreatedAt:     created,
	}, nil
}
