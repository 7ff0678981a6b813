package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wire format of ProfitReport timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// ProfitReport is one arbitrage profit estimate built from a pair of fetched rates.
// CapturedAt orders and deduplicates reports; it is rendered at second resolution on the wire.
type ProfitReport struct {
	CapturedAt    time.Time `json:"-"`
	ValrRate      float64   `json:"valr_rate"`
	MarketRate    float64   `json:"market_rate"`
	Spread        float64   `json:"spread"`
	InitialZAR    float64   `json:"initial_zar"`
	USDPurchased  float64   `json:"usd_purchased"`
	WireFee       float64   `json:"wire_fee"`
	FinalZAR      float64   `json:"final_zar"`
	ProfitZAR     float64   `json:"profit_zar"`
	ProfitPercent float64   `json:"profit_percent"`
}

// Timestamp returns the capture time in TimestampLayout.
func (r ProfitReport) Timestamp() string {
	return r.CapturedAt.Format(TimestampLayout)
}

// MarshalJSON adds the formatted timestamp field.
func (r ProfitReport) MarshalJSON() ([]byte, error) {
	type plain ProfitReport
	return json.Marshal(struct {
		Timestamp string `json:"timestamp"`
		plain
	}{
		Timestamp: r.Timestamp(),
		plain:     plain(r),
	})
}

// Settings holds the user-adjustable inputs of the profit calculation.
type Settings struct {
	InitialInvestment float64 `json:"initial_investment"`
	USDPurchased      float64 `json:"usd_purchased"`
}

// SettingsUpdate carries a partial settings change; nil fields are left as they are.
type SettingsUpdate struct {
	InitialInvestment *float64 `json:"initial_investment"`
	USDPurchased      *float64 `json:"usd_purchased"`
}
