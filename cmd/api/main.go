package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/mcclellann/fredBilling/pkg/config"
	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/logging"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/notify"
	"github.com/mcclellann/fredBilling/pkg/scheduler"
	"github.com/mcclellann/fredBilling/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize SQLite store", "error", err)
		os.Exit(1)
	}
	defer sqliteStore.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	l := ledger.NewLedger(sqliteStore, ledger.WithLocation(cfg.Location))
	sch := newScheduler(cfg, sqliteStore, recorder)
	server := NewServer(l, sqliteStore, sch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sch != nil {
		c := cron.New(cron.WithLocation(cfg.Location))
		_, err := c.AddFunc(cfg.CronSpec, func() {
			hour := time.Now().In(cfg.Location).Hour()
			slog.Info("scheduled billing run", "hour", hour)
			resp := sch.RunHour(ctx, hour)
			if !resp.Success {
				slog.Error("scheduled billing run failed", "hour", hour, "error", resp.Error)
			}
		})
		if err != nil {
			slog.Error("invalid CRON_SPEC", "spec", cfg.CronSpec, "error", err)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "timezone", cfg.Location.String())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newScheduler returns nil when no messaging gateway is configured.
func newScheduler(cfg config.Config, s store.Storage, rec *metrics.Recorder) *scheduler.Scheduler {
	if cfg.MessagingBaseURL == "" {
		slog.Warn("MESSAGING_BASE_URL not set, billing batch disabled")
		return nil
	}
	sender, err := notify.NewHTTPSender(notify.HTTPOptions{
		BaseURL:     cfg.MessagingBaseURL,
		APIKey:      cfg.MessagingAPIKey,
		RetryPolicy: notify.DefaultRetryPolicy(),
	})
	if err != nil {
		slog.Error("invalid messaging gateway settings", "error", err)
		os.Exit(1)
	}
	return scheduler.New(s, sender, scheduler.Options{
		BatchSize:       cfg.BatchSize,
		SendDelay:       cfg.SendDelay,
		MaxPerTenant:    cfg.MaxPerTenant,
		DefaultSendHour: cfg.DefaultSendHour,
		CountryCode:     cfg.CountryCode,
		Location:        cfg.Location,
		Metrics:         rec,
	})
}
