package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"dashcal/internal/config"
	"dashcal/internal/ics"
	applog "dashcal/internal/log"
	"dashcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	applog.Setup(flags.debug)

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	if v := os.Getenv("DASHCAL_CONFIG"); v != "" && flags.configPath == defaultConfigPath {
		flags.configPath = v
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("can't load config", "config_path", flags.configPath, "err", err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	} else if v := os.Getenv("DASHCAL_LISTEN"); v != "" {
		conf.Listen = v
	}

	slog.Info("dashcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"window_past_months", conf.WindowPastMonths,
		"window_future_months", conf.WindowFutureMonths,
		"feed_count", len(conf.Feeds),
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	engine := ics.NewEngine()
	engine.SetMaxOccurrencesPerEvent(conf.MaxOccurrencesPerEvent)
	server := web.NewServer(conf, engine)

	if flags.once {
		server.RefreshAll(ctx)
		slog.Info("single refresh cycle done, exiting")
		return
	}

	// Warm the snapshots before the first cron tick.
	server.RefreshAll(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
		server.RefreshAll(ctx)
	}); err != nil {
		slog.Error("invalid refresh cron expression", "refresh", conf.RefreshCron, "err", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown", "err", err)
		}
	}()

	slog.Info("HTTP server listening", "listen", "http://"+conf.Listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "err", err)
		os.Exit(1)
	}
	slog.Info("dashcal exiting")
}

const defaultConfigPath = "/etc/dashcal/config.yaml"

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle for all feeds and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return cfg
}
