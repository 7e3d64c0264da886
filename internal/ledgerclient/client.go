// Package ledgerclient reaches a history service running in another
// process. It satisfies cart.HistorySource and the quote recorder.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/history"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Client calls the history endpoints of a remote service. Calls are not
// retried.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) entryURL(sessionID, id string) string {
	return fmt.Sprintf("%s/api/tariff/history/%s?sessionId=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(sessionID))
}

// Get fetches an entry from another session's history. A 404 is reported
// as (nil, nil).
func (c *Client) Get(ctx context.Context, sessionID, id string) (*model.CalculationHistoryEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, c.entryURL(sessionID, id), "", nil)
	if err != nil {
		return nil, errs.DataAccess("ledger get", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, errs.DataAccess("ledger get", statusError(resp))
	}
	var entry model.CalculationHistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, errs.DataAccess("ledger get: decode", err)
	}
	return &entry, nil
}

// Discard removes an entry from another session's history.
func (c *Client) Discard(ctx context.Context, sessionID, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.entryURL(sessionID, id), "", nil)
	if err != nil {
		return errs.DataAccess("ledger discard", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errs.DataAccess("ledger discard", statusError(resp))
	}
	return nil
}

// Append records a calculation in the session's history. A 204 from the
// service means nothing was recorded and yields (nil, nil).
func (c *Client) Append(ctx context.Context, sessionID string, env *history.Envelope) (*model.CalculationHistoryEntry, error) {
	body, err := json.Marshal(history.SaveRequest{CalculationData: env})
	if err != nil {
		return nil, errs.DataAccess("ledger append: encode", err)
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/tariff/history/save", sessionID, body)
	if err != nil {
		return nil, errs.DataAccess("ledger append", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusCreated, http.StatusOK:
	default:
		return nil, errs.DataAccess("ledger append", statusError(resp))
	}
	var entry model.CalculationHistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, errs.DataAccess("ledger append: decode", err)
	}
	return &entry, nil
}

func (c *Client) do(ctx context.Context, method, target, sessionID string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(session.HeaderName, sessionID)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	return c.http.Do(req)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
