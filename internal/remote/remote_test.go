package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/readykit/internal/checklist"
	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/report"
)

func sampleReport() report.IncidentReport {
	return report.IncidentReport{
		ID:           "r-1",
		IncidentType: "Fire",
		Date:         "2026-01-02",
		Time:         "03:04",
		Description:  "smoke near the market",
		Location:     report.Location{Latitude: 13.1, Longitude: 123.7},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestReportClient_SubmitSendsWireFormat(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotAuth   string
		gotCT     string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL+"/", WithToken("secret"))
	require.NoError(t, c.Submit(context.Background(), sampleReport()))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/incidents", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "r-1", gotBody["id"])
	assert.Equal(t, "Fire", gotBody["incidentType"])
	assert.Equal(t, []any{}, gotBody["images"])
	assert.NotContains(t, gotBody, "reporter_phone")
}

func TestReportClient_NoTokenNoHeader(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Values("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewReportClient(srv.URL).Submit(context.Background(), sampleReport()))
	assert.Empty(t, gotAuth)
}

func TestReportClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   fault.Kind
		reason string
		detail string
	}{
		{http.StatusOK, "", "", "", ""},
		{http.StatusCreated, `{"id":"r-1"}`, "", "", ""},
		{http.StatusAccepted, "", fault.KindUnknown, "", "HTTP 202"},
		{http.StatusNoContent, "", fault.KindUnknown, "", "HTTP 204"},
		{http.StatusBadRequest, `{"detail":"bad date"}`, fault.KindValidation, fault.ReasonRejected, "bad date"},
		{http.StatusConflict, `{"error":"duplicate"}`, fault.KindValidation, fault.ReasonRejected, "duplicate"},
		{http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","location"]}]}`, fault.KindValidation, fault.ReasonRejected, "location"},
		{http.StatusUnauthorized, "", fault.KindValidation, ReasonUnauthorized, "HTTP 401"},
		{http.StatusInternalServerError, "upstream down", fault.KindUnknown, "", "upstream down"},
		{http.StatusServiceUnavailable, "", fault.KindUnknown, "", "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := NewReportClient(srv.URL).Submit(context.Background(), sampleReport())
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, fault.KindOf(err))
			assert.Equal(t, tt.reason, fault.ReasonOf(err))
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestReportClient_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewReportClient(url).Submit(context.Background(), sampleReport())
	require.Error(t, err)
	assert.True(t, fault.IsNetwork(err))
}

func TestReportClient_CancelledContextIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewReportClient(srv.URL).Submit(ctx, sampleReport())
	require.Error(t, err)
	assert.True(t, fault.IsNetwork(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]report.IncidentReport{sampleReport()})
	}))
	defer srv.Close()

	got, err := NewReportClient(srv.URL).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r-1", got[0].ID)
	assert.True(t, sampleReport().CreatedAt.Equal(got[0].CreatedAt))
}

func TestReportClient_TruncatedBodyIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":`)
	}))
	defer srv.Close()

	_, err := NewReportClient(srv.URL).List(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsNetwork(err))
}

func TestChecklistClient_LoadPresentAndAbsent(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		found bool
		n     int
	}{
		{"present", `{"checklist":{"checklist_data":[{"id":1,"category":"Documents","item":"IDs","checked":true}]}}`, true, 1},
		{"null", `{"checklist":null}`, false, 0},
		{"empty object", `{}`, false, 0},
		{"empty list", `{"checklist":{"checklist_data":[]}}`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/user/checklist", r.URL.Path)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			items, found, err := NewChecklistClient(srv.URL).Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Len(t, items, tt.n)
		})
	}
}

func TestChecklistClient_SaveBody(t *testing.T) {
	var got map[string][]checklist.Item
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	items := []checklist.Item{{ID: 1, Category: "Documents", Item: "IDs", Checked: true}}
	require.NoError(t, NewChecklistClient(srv.URL, WithToken("t")).Save(context.Background(), items))
	assert.Equal(t, items, got["checklist_data"])
}

func TestChecklistClient_SaveNilSendsEmptyArray(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
	}))
	defer srv.Close()

	require.NoError(t, NewChecklistClient(srv.URL).Save(context.Background(), nil))
	assert.JSONEq(t, `{"checklist_data":[]}`, raw)
}

func TestChecklistClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := NewChecklistClient(srv.URL).Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, ReasonUnauthorized, fault.ReasonOf(err))
}
