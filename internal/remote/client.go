// Package remote implements HTTP clients for the incident and checklist
// services.
//
// Every error is classified with the fault package so callers can decide
// what to retry:
//
//   - transport failures (no route, refused, reset, timeout): KindNetwork
//   - 400, 409, 422: KindValidation with reason "rejected"
//   - 401, 403: KindValidation with reason "unauthorized"
//   - any other non-2xx status: KindUnknown
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/fault"
)

// ReasonUnauthorized marks a missing or refused bearer token.
const ReasonUnauthorized = "unauthorized"

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 4 << 10

// Option configures a client.
type Option func(*client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *client) { c.log = l }
}

type client struct {
	base  string
	http  *http.Client
	token string
	log   *zap.Logger
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// do sends body as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil).
func (c client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fault.Wrap(fault.KindValidation, op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fault.Wrap(fault.KindUnknown, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	c.log.Debug("Remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(op, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A truncated body usually means the connection dropped mid-read.
		return fault.Wrap(fault.KindNetwork, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError classifies any response other than 200 or 201. Other 2xx
// codes are not an acknowledgement and count as unknown failures.
func statusError(op string, resp *http.Response) error {
	err := fmt.Errorf("HTTP %d%s", resp.StatusCode, detail(resp.Body))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return fault.Wrapf(fault.KindValidation, op, fault.ReasonRejected, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fault.Wrapf(fault.KindValidation, op, ReasonUnauthorized, err)
	default:
		return fault.Wrap(fault.KindUnknown, op, err)
	}
}

// detail extracts {"detail": ...} or {"error": ...} from an error body.
func detail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch d := payload.Detail.(type) {
		case string:
			return ": " + d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return ": " + string(b)
			}
		}
		if payload.Error != "" {
			return ": " + payload.Error
		}
	}
	return ": " + strings.TrimSpace(string(data))
}
