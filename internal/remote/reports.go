package remote

import (
	"context"
	"net/http"

	"github.com/roach88/readykit/internal/report"
)

// ReportClient talks to the incident service.
type ReportClient struct {
	c client
}

// NewReportClient creates a client for the service at baseURL.
func NewReportClient(baseURL string, opts ...Option) *ReportClient {
	return &ReportClient{c: newClient(baseURL, opts)}
}

// Submit posts one report. A 200 or 201 response is success.
func (rc *ReportClient) Submit(ctx context.Context, r report.IncidentReport) error {
	return rc.c.do(ctx, "submit report", http.MethodPost, "/api/incidents", r, nil)
}

// List returns every report the service holds.
func (rc *ReportClient) List(ctx context.Context) ([]report.IncidentReport, error) {
	var out []report.IncidentReport
	if err := rc.c.do(ctx, "list reports", http.MethodGet, "/api/incidents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
