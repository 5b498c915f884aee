package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const fredBaseURL = "https://api.stlouisfed.org/fred"

// fredSeriesID is the 3-month Treasury bill secondary market rate, the
// conventional proxy for the risk-free rate in Black-Scholes.
const fredSeriesID = "DTB3"

// FREDClient implements journal.RateSource against the St. Louis Fed's
// FRED API, cached for rateTTL since the series only updates daily.
type FREDClient struct {
	APIKey string
	http   *http.Client
	cache  *ttlCache
}

// NewFREDClient builds a client; apiKey may be empty in which case
// RiskFreeRate returns an error; Core then logs a ProviderError, computes
// with a zero risk-free rate and marks the affected trades AnalyticsPartial.
func NewFREDClient(apiKey string) *FREDClient {
	return &FREDClient{
		APIKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		cache:  newTTLCache(),
	}
}

type fredObservationsResponse struct {
	Observations []struct {
		Value string `json:"value"`
	} `json:"observations"`
}

// RiskFreeRate returns the most recent DTB3 observation as a decimal
// fraction (e.g. 0.0525), cached across calls within rateTTL.
func (f *FREDClient) RiskFreeRate(ctx context.Context) (float64, error) {
	v, err := f.cache.fetch("rate", rateTTL, func() (interface{}, error) {
		return f.fetchRate(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("fred rate: %w", err)
	}
	return v.(float64), nil
}

func (f *FREDClient) fetchRate(ctx context.Context) (float64, error) {
	if f.APIKey == "" {
		return 0, fmt.Errorf("no fred api key configured")
	}
	url := fmt.Sprintf("%s/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=1",
		fredBaseURL, fredSeriesID, f.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fred observations: status %d", resp.StatusCode)
	}

	var parsed fredObservationsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.Observations) == 0 {
		return 0, fmt.Errorf("fred observations: empty response")
	}
	pct, err := strconv.ParseFloat(parsed.Observations[0].Value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fred observation: %w", err)
	}
	return pct / 100.0, nil
}
