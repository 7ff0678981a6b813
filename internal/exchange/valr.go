package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const (
	valrDefaultBaseURL = "https://api.valr.com"
	valrSummaryPath    = "/v1/public/USDCZAR/marketsummary"
)

// ValrClient implements the RateClient interface for the VALR USDC/ZAR market summary.
// The rate is the current best bid.
type ValrClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewValrClient creates a new ValrClient.
func NewValrClient(logger *slog.Logger, hc *http.Client, baseURL, apiKey string) *ValrClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = valrDefaultBaseURL
	}
	return &ValrClient{logger: logger, http: hc, baseURL: baseURL, apiKey: apiKey}
}

func (v *ValrClient) GetName() string {
	return "valr"
}

type valrMarketSummary struct {
	BidPrice json.RawMessage `json:"bidPrice"`
}

// FetchRate returns the USDC/ZAR bid price.
func (v *ValrClient) FetchRate(ctx context.Context) (float64, error) {
	header := http.Header{}
	header.Set("X-Api-Key", v.apiKey)

	var summary valrMarketSummary
	if err := getJSON(ctx, v.http, v.GetName(), v.baseURL+valrSummaryPath, header, &summary); err != nil {
		v.logger.Warn("ValrClient: failed to fetch market summary", "error", err)
		return 0, err
	}

	bid, ok := parsePositive(summary.BidPrice)
	if !ok {
		err := unavailable(v.GetName(), "missing or invalid bidPrice %q", string(summary.BidPrice))
		v.logger.Warn("ValrClient: bad bid price", "error", err)
		return 0, err
	}
	v.logger.Debug("ValrClient: fetched bid", "bid", bid)
	return bid, nil
}
