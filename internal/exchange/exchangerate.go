package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const exchangeRateDefaultBaseURL = "https://v6.exchangerate-api.com"

// ExchangeRateClient implements the RateClient interface for ExchangeRate-API v6.
// It requests the ZAR conversion table and returns ZAR per USD.
type ExchangeRateClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewExchangeRateClient creates a new ExchangeRateClient.
func NewExchangeRateClient(logger *slog.Logger, hc *http.Client, baseURL, apiKey string) *ExchangeRateClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = exchangeRateDefaultBaseURL
	}
	return &ExchangeRateClient{logger: logger, http: hc, baseURL: baseURL, apiKey: apiKey}
}

func (e *ExchangeRateClient) GetName() string {
	return "exchangerate"
}

type latestRates struct {
	Result          string                     `json:"result"`
	ConversionRates map[string]json.RawMessage `json:"conversion_rates"`
}

// FetchRate returns how many ZAR one USD buys.
func (e *ExchangeRateClient) FetchRate(ctx context.Context) (float64, error) {
	endpoint := e.baseURL + "/v6/" + url.PathEscape(e.apiKey) + "/latest/ZAR"

	var latest latestRates
	if err := getJSON(ctx, e.http, e.GetName(), endpoint, nil, &latest); err != nil {
		e.logger.Warn("ExchangeRateClient: failed to fetch latest rates", "error", err)
		return 0, err
	}
	if latest.Result != "success" {
		err := unavailable(e.GetName(), "result %q", latest.Result)
		e.logger.Warn("ExchangeRateClient: provider reported failure", "error", err)
		return 0, err
	}

	zarToUSD, ok := parsePositive(latest.ConversionRates["USD"])
	if !ok {
		err := unavailable(e.GetName(), "missing or invalid USD conversion rate")
		e.logger.Warn("ExchangeRateClient: bad conversion rate", "error", err)
		return 0, err
	}
	rate := 1 / zarToUSD
	e.logger.Debug("ExchangeRateClient: fetched market rate", "rate", rate)
	return rate, nil
}
