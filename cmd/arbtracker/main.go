// Command arbtracker polls the VALR USDC/ZAR bid and the USD/ZAR market rate, estimates the
// profit of buying USD at market and selling it on VALR, and serves the results over HTTP.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"arbtracker/internal/arbitrage"
	"arbtracker/internal/config"
	"arbtracker/internal/exchange"
	"arbtracker/internal/history"
	"arbtracker/internal/metrics"
	"arbtracker/internal/model"
	"arbtracker/internal/server"
	"arbtracker/internal/settings"
	"arbtracker/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", ".", "directory holding an optional config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("arbtracker stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hc := &http.Client{Timeout: cfg.HTTP.Timeout}
	valr, err := exchange.NewClient("valr", logger, hc, cfg.Valr)
	if err != nil {
		return err
	}
	market, err := exchange.NewClient("exchangerate", logger, hc, cfg.ExchangeRate)
	if err != nil {
		return err
	}
	if cfg.ExchangeRate.APIKey == "" {
		logger.Warn("EXCHANGERATE_API_KEY is not set, market rate lookups will fail")
	}

	store, err := settings.Load(logger, cfg.Settings.File, model.Settings{
		InitialInvestment: cfg.Settings.InitialInvestment,
		USDPurchased:      cfg.Settings.USDPurchased,
	})
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	hub := server.NewHub(logger)
	calc := arbitrage.NewCalculator(logger, valr, market, recorder)
	trk := tracker.New(logger, calc, history.NewBuffer(cfg.History.Capacity), store,
		tracker.WithObserver(recorder),
		tracker.WithPublisher(hub),
	)

	srv := server.NewServer(server.Config{
		Addr:         cfg.Server.Addr,
		Mode:         ginMode(cfg.App.Env),
		PollInterval: cfg.Poll.Interval,
	}, trk, hub, recorder.Handler(), logger)

	logger.Info("arbtracker starting",
		"env", cfg.App.Env,
		"addr", cfg.Server.Addr,
		"poll_interval", cfg.Poll.Interval.String(),
		"settings_file", store.Path(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(srv.Start)
	poller := tracker.NewPoller(gctx, logger, trk, cfg.Poll.Interval)
	g.Go(func() error {
		if err := poller.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		poller.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("arbtracker stopped")
	return err
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ginMode(env string) string {
	switch strings.ToLower(env) {
	case "prod", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
