package exchange

import (
	"fmt"
	"log/slog"
	"net/http"

	"arbtracker/internal/config"
)

// NewClient creates a new rate client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, hc *http.Client, cfg config.UpstreamConfig) (RateClient, error) {
	switch name {
	case "valr":
		return NewValrClient(logger, hc, cfg.BaseURL, cfg.APIKey), nil
	case "exchangerate":
		return NewExchangeRateClient(logger, hc, cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown rate provider: %s", name)
	}
}
