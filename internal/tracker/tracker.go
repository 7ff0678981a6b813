// Package tracker owns the shared state of the service: the report history, the settings
// store and the most recent polled report.
package tracker

import (
	"context"
	"log/slog"
	"sync"

	"arbtracker/internal/history"
	"arbtracker/internal/model"
	"arbtracker/internal/settings"
)

// Calculation triggers, used as metric labels.
const (
	TriggerPoll    = "poll"
	TriggerRequest = "request"
)

// ProfitCalculator produces a report for the given settings.
type ProfitCalculator interface {
	Calculate(ctx context.Context, settings model.Settings, usdPurchased *float64) (model.ProfitReport, error)
}

// Observer receives calculation outcomes. Implemented by metrics.Recorder.
type Observer interface {
	RecordCalculation(trigger string, report model.ProfitReport, err error)
	SetHistorySize(n int)
}

// Publisher is notified of every report added to the history.
type Publisher interface {
	Publish(report model.ProfitReport)
}

// Tracker is the service object shared by the poller and the HTTP handlers.
// All state is reached through its methods.
type Tracker struct {
	logger    *slog.Logger
	calc      ProfitCalculator
	history   *history.Buffer
	settings  *settings.Store
	observer  Observer
	publisher Publisher

	mu     sync.RWMutex
	latest *model.ProfitReport
}

// Option configures optional Tracker collaborators.
type Option func(*Tracker)

// WithObserver sets the calculation observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// WithPublisher sets the publisher for new history entries.
func WithPublisher(p Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// New creates a Tracker.
func New(logger *slog.Logger, calc ProfitCalculator, buf *history.Buffer, store *settings.Store, opts ...Option) *Tracker {
	t := &Tracker{
		logger:   logger,
		calc:     calc,
		history:  buf,
		settings: store,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Refresh runs one polling cycle: calculate with the current settings, record the report as the
// most recent and add it to the history.
func (t *Tracker) Refresh(ctx context.Context) error {
	report, err := t.calculate(ctx, TriggerPoll, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.latest = &report
	t.mu.Unlock()
	return nil
}

// CalculateNow runs an on-demand calculation, optionally overriding the USD notional, and adds
// the report to the history when its capture time is new.
func (t *Tracker) CalculateNow(ctx context.Context, usdPurchased *float64) (model.ProfitReport, error) {
	return t.calculate(ctx, TriggerRequest, usdPurchased)
}

func (t *Tracker) calculate(ctx context.Context, trigger string, usdPurchased *float64) (model.ProfitReport, error) {
	report, err := t.calc.Calculate(ctx, t.settings.Get(), usdPurchased)
	if t.observer != nil {
		t.observer.RecordCalculation(trigger, report, err)
	}
	if err != nil {
		t.logger.Warn("Profit calculation failed", "trigger", trigger, "error", err)
		return model.ProfitReport{}, err
	}

	if t.history.Append(report) {
		if t.observer != nil {
			t.observer.SetHistorySize(t.history.Len())
		}
		if t.publisher != nil {
			t.publisher.Publish(report)
		}
	}
	return report, nil
}

// History returns the stored reports, oldest first.
func (t *Tracker) History() []model.ProfitReport {
	return t.history.Snapshot()
}

// HistorySize returns the number of stored reports.
func (t *Tracker) HistorySize() int {
	return t.history.Len()
}

// LatestReport returns the newest report in the history, whatever triggered it.
func (t *Tracker) LatestReport() (model.ProfitReport, bool) {
	return t.history.Latest()
}

// LastRefresh returns the report of the latest successful polling cycle.
func (t *Tracker) LastRefresh() (model.ProfitReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return model.ProfitReport{}, false
	}
	return *t.latest, true
}

// Settings returns the current calculation settings.
func (t *Tracker) Settings() model.Settings {
	return t.settings.Get()
}

// UpdateSettings applies and persists a settings change.
func (t *Tracker) UpdateSettings(u model.SettingsUpdate) (model.Settings, error) {
	return t.settings.Update(u)
}
