package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/errs"
)

// HTTPSource reads an exchangerate-api style endpoint returning
// {"result":"success","conversion_rates":{...}} for base USD.
type HTTPSource struct {
	url  string
	http *http.Client
}

// NewHTTPSource creates a source for the full latest-rates URL.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{url: url, http: &http.Client{Timeout: timeout}}
}

type latestResponse struct {
	Result          string                     `json:"result"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// Latest fetches the current rate table.
func (s *HTTPSource) Latest(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errs.DataAccess("currency fetch", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, errs.DataAccess("currency fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.DataAccess("currency fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errs.DataAccess("currency fetch: decode", err)
	}
	if body.Result != "success" {
		return nil, errs.DataAccess("currency fetch", fmt.Errorf("result %q", body.Result))
	}
	return body.ConversionRates, nil
}
