package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the time between polling cycles.
const DefaultInterval = 300 * time.Second

// Refresher runs one polling cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Poller runs Refresh once on Start and then on a fixed interval until Stop.
type Poller struct {
	cron     *cron.Cron
	logger   *slog.Logger
	target   Refresher
	ctx      context.Context
	interval time.Duration
	wg       sync.WaitGroup
}

// NewPoller creates a Poller whose cycles run under ctx; cancelling it aborts an in-flight
// refresh and skips later ones. A non-positive interval selects DefaultInterval.
func NewPoller(ctx context.Context, logger *slog.Logger, target Refresher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	cl := cronLogger{logger: logger}
	return &Poller{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:   logger,
		target:   target,
		ctx:      ctx,
		interval: interval,
	}
}

// Start schedules the polling job and triggers the first cycle immediately.
func (p *Poller) Start() error {
	spec := "@every " + p.interval.String()
	if _, err := p.cron.AddFunc(spec, p.runOnce); err != nil {
		return fmt.Errorf("schedule poller %q: %w", spec, err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOnce()
	}()

	p.cron.Start()
	p.logger.Info("Poller started", "interval", p.interval)
	return nil
}

// Stop halts scheduling and waits for a running cycle to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("Poller stopped")
}

func (p *Poller) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Poller: cycle panicked", "panic", r)
		}
	}()
	if err := p.ctx.Err(); err != nil {
		return
	}

	start := time.Now()
	if err := p.target.Refresh(p.ctx); err != nil {
		p.logger.Warn("Poller: cycle produced no report", "error", err, "elapsed", time.Since(start))
		return
	}
	p.logger.Debug("Poller: cycle complete", "elapsed", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
