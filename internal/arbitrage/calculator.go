package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"arbtracker/internal/exchange"
	"arbtracker/internal/model"
)

// Fee model for the USD wire out, USDC sale on VALR and ZAR withdrawal.
const (
	WireFeeRate    = 0.0013
	MinWireFeeUSD  = 10.0
	TickSize       = 0.001
	WithdrawalFee  = 30.0
	percentDivisor = 100.0
)

var (
	// ErrRatesUnavailable is returned when either rate could not be fetched.
	ErrRatesUnavailable = errors.New("rates unavailable")
	// ErrNonFinite is returned when the inputs overflow the profit figures.
	ErrNonFinite = errors.New("non-finite profit figures")
)

// Inputs are the values a profit estimate is computed from.
type Inputs struct {
	ValrRate          float64
	MarketRate        float64
	InitialInvestment float64
	USDPurchased      float64
}

// ComputeProfit applies the fee model to a pair of rates. It has no side effects.
// The withdrawal fee is subtracted from the ZAR proceeds as a literal amount.
func ComputeProfit(in Inputs) model.ProfitReport {
	wireFee := math.Max(WireFeeRate*in.USDPurchased, MinWireFeeUSD)
	usdAfterWire := in.USDPurchased - wireFee

	sellRate := in.ValrRate + TickSize
	finalZAR := usdAfterWire*sellRate - WithdrawalFee

	profit := finalZAR - in.InitialInvestment
	profitPercent := 0.0
	if in.InitialInvestment > 0 {
		profitPercent = profit / in.InitialInvestment * percentDivisor
	}

	return model.ProfitReport{
		ValrRate:      in.ValrRate,
		MarketRate:    in.MarketRate,
		Spread:        (in.ValrRate/in.MarketRate - 1) * percentDivisor,
		InitialZAR:    in.InitialInvestment,
		USDPurchased:  in.USDPurchased,
		WireFee:       wireFee,
		FinalZAR:      finalZAR,
		ProfitZAR:     profit,
		ProfitPercent: profitPercent,
	}
}

// FetchRecorder observes individual rate fetches.
type FetchRecorder interface {
	RecordFetch(source string, err error, elapsed time.Duration)
}

// Calculator fetches the two rates and turns them into a ProfitReport.
type Calculator struct {
	logger   *slog.Logger
	bid      exchange.RateClient
	market   exchange.RateClient
	recorder FetchRecorder
	now      func() time.Time
}

// NewCalculator creates a new Calculator. bid supplies the local USDC/ZAR bid and market the
// reference USD/ZAR rate. recorder may be nil.
func NewCalculator(logger *slog.Logger, bid, market exchange.RateClient, recorder FetchRecorder) *Calculator {
	return &Calculator{
		logger:   logger,
		bid:      bid,
		market:   market,
		recorder: recorder,
		now:      time.Now,
	}
}

// Calculate fetches both rates and computes the profit for the given settings.
// A nil usdPurchased means settings.USDPurchased is used.
func (c *Calculator) Calculate(ctx context.Context, settings model.Settings, usdPurchased *float64) (model.ProfitReport, error) {
	usd := settings.USDPurchased
	if usdPurchased != nil {
		usd = *usdPurchased
	}

	var bidRate, marketRate float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bidRate, err = c.fetch(gctx, c.bid)
		return err
	})
	g.Go(func() (err error) {
		marketRate, err = c.fetch(gctx, c.market)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.ProfitReport{}, fmt.Errorf("%w: %w", ErrRatesUnavailable, err)
	}

	report := ComputeProfit(Inputs{
		ValrRate:          bidRate,
		MarketRate:        marketRate,
		InitialInvestment: settings.InitialInvestment,
		USDPurchased:      usd,
	})
	if !isFinite(report) {
		return model.ProfitReport{}, fmt.Errorf("%w: usd_purchased=%v initial_investment=%v",
			ErrNonFinite, usd, settings.InitialInvestment)
	}
	report.CapturedAt = c.now()

	c.logger.Info("Profit calculated",
		"valrRate", report.ValrRate,
		"marketRate", report.MarketRate,
		"spread", report.Spread,
		"profitZAR", report.ProfitZAR,
		"profitPercent", report.ProfitPercent,
	)
	return report, nil
}

func isFinite(r model.ProfitReport) bool {
	for _, v := range []float64{
		r.ValrRate, r.MarketRate, r.Spread, r.InitialZAR, r.USDPurchased,
		r.WireFee, r.FinalZAR, r.ProfitZAR, r.ProfitPercent,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c *Calculator) fetch(ctx context.Context, client exchange.RateClient) (float64, error) {
	start := time.Now()
	rate, err := client.FetchRate(ctx)
	if err == nil && (rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0)) {
		err = fmt.Errorf("%s: %w: non-positive rate %v", client.GetName(), exchange.ErrUnavailable, rate)
	}
	if c.recorder != nil {
		c.recorder.RecordFetch(client.GetName(), err, time.Since(start))
	}
	return rate, err
}
