package remote

import (
	"context"
	"net/http"

	"github.com/roach88/readykit/internal/checklist"
)

// ChecklistClient reads and writes the account's checklist.
type ChecklistClient struct {
	c client
}

// NewChecklistClient creates a client for the service at baseURL.
// The account is identified by the bearer token.
func NewChecklistClient(baseURL string, opts ...Option) *ChecklistClient {
	return &ChecklistClient{c: newClient(baseURL, opts)}
}

type checklistEnvelope struct {
	Checklist *checklistData `json:"checklist"`
}

type checklistData struct {
	Items []checklist.Item `json:"checklist_data"`
}

// Load fetches the stored checklist; false when the account has none.
func (cc *ChecklistClient) Load(ctx context.Context) ([]checklist.Item, bool, error) {
	var env checklistEnvelope
	if err := cc.c.do(ctx, "load checklist", http.MethodGet, "/api/user/checklist", nil, &env); err != nil {
		return nil, false, err
	}
	if env.Checklist == nil || env.Checklist.Items == nil {
		return nil, false, nil
	}
	return env.Checklist.Items, true, nil
}

// Save replaces the stored checklist.
func (cc *ChecklistClient) Save(ctx context.Context, items []checklist.Item) error {
	if items == nil {
		items = []checklist.Item{}
	}
	return cc.c.do(ctx, "save checklist", http.MethodPost, "/api/user/checklist", checklistData{Items: items}, nil)
}
