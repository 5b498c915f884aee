package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/traderid/optjournal/internal/journal"
)

const polygonBaseURL = "https://api.polygon.io"

// PolygonClient implements journal.QuoteSource against Polygon's REST API,
// fronted by a TTL cache with singleflight coalescing for concurrent
// lookups of the same underlying.
type PolygonClient struct {
	APIKey string
	http   *http.Client
	quotes *ttlCache
	greeks *ttlCache
}

// NewPolygonClient builds a client; apiKey may be empty in which case every
// call returns a ProviderError, letting Core mark trades AnalyticsPartial.
func NewPolygonClient(apiKey string) *PolygonClient {
	return &PolygonClient{
		APIKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		quotes: newTTLCache(),
		greeks: newTTLCache(),
	}
}

type polygonLastTradeResponse struct {
	Results struct {
		Price float64 `json:"p"`
	} `json:"results"`
}

// Spot returns the last trade price for an underlying.
func (p *PolygonClient) Spot(ctx context.Context, underlying string) (journal.AnalyticsInputs, error) {
	key := "spot:" + underlying
	v, err := p.quotes.fetch(key, quoteTTL, func() (interface{}, error) {
		return p.fetchSpot(ctx, underlying)
	})
	if err != nil {
		return journal.AnalyticsInputs{}, &journal.ProviderError{Provider: "polygon", Err: err}
	}
	price := v.(decimal.Decimal)
	return journal.AnalyticsInputs{UnderlyingPrice: price, Now: time.Now()}, nil
}

func (p *PolygonClient) fetchSpot(ctx context.Context, underlying string) (decimal.Decimal, error) {
	if p.APIKey == "" {
		return decimal.Zero, fmt.Errorf("no polygon api key configured")
	}
	url := fmt.Sprintf("%s/v2/last/trade/%s?apiKey=%s", polygonBaseURL, strings.ToUpper(underlying), p.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("polygon last trade: status %d", resp.StatusCode)
	}
	var parsed polygonLastTradeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(parsed.Results.Price), nil
}

type polygonOptionSnapshot struct {
	Greeks struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
	} `json:"greeks"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

// LegGreeks fetches per-leg option snapshot Greeks, coalesced and cached per
// (underlying, leg_key) pair.
func (p *PolygonClient) LegGreeks(ctx context.Context, underlying string, legs []journal.TradeLeg, at time.Time) ([]journal.TradeLeg, error) {
	out := make([]journal.TradeLeg, len(legs))
	copy(out, legs)

	for i, leg := range out {
		if leg.OptionType == journal.OptionNone {
			continue
		}
		key := "greeks:" + underlying + ":" + leg.LegKey
		v, err := p.greeks.fetch(key, greeksTTL, func() (interface{}, error) {
			return p.fetchLegGreeks(ctx, underlying, leg)
		})
		if err != nil {
			return out, &journal.ProviderError{Provider: "polygon", Err: err}
		}
		snap := v.(polygonOptionSnapshot)
		out[i].Delta = snap.Greeks.Delta
		out[i].Gamma = snap.Greeks.Gamma
		out[i].Theta = snap.Greeks.Theta
		out[i].Vega = snap.Greeks.Vega
		out[i].IV = snap.ImpliedVolatility
	}
	return out, nil
}

func (p *PolygonClient) fetchLegGreeks(ctx context.Context, underlying string, leg journal.TradeLeg) (polygonOptionSnapshot, error) {
	if p.APIKey == "" {
		return polygonOptionSnapshot{}, fmt.Errorf("no polygon api key configured")
	}
	occSymbol := occTicker(underlying, leg)
	url := fmt.Sprintf("%s/v3/snapshot/options/%s/%s?apiKey=%s", polygonBaseURL, strings.ToUpper(underlying), occSymbol, p.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return polygonOptionSnapshot{}, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return polygonOptionSnapshot{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return polygonOptionSnapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return polygonOptionSnapshot{}, fmt.Errorf("polygon option snapshot: status %d", resp.StatusCode)
	}
	var wrapper struct {
		Results polygonOptionSnapshot `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return polygonOptionSnapshot{}, err
	}
	return wrapper.Results, nil
}

// occTicker builds the OCC-style option symbol: upper-cased underlying +
// YYMMDD + C/P + strike*1000 zero-padded to 8 digits.
func occTicker(underlying string, leg journal.TradeLeg) string {
	strikeMilli := leg.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s%06d%s%08d",
		strings.ToUpper(underlying),
		mustYYMMDD(leg.Expiration),
		string(leg.OptionType),
		strikeMilli,
	)
}

func mustYYMMDD(t time.Time) int {
	y, m, d := t.UTC().Date()
	return (y%100)*10000 + int(m)*100 + d
}

// EvictExpired sweeps both the quote and greeks caches, for callers running
// a periodic janitor goroutine.
func (p *PolygonClient) EvictExpired() int {
	return p.quotes.evictExpired() + p.greeks.evictExpired()
}
