package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labmonitor/internal/config"
	"labmonitor/internal/metrics"
	"labmonitor/internal/monitor"
	"labmonitor/internal/server"
	"labmonitor/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web server (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Int("services", len(cfg.Services)).Str("config", *configPath).Msg("configuration loaded")

	rec := metrics.NewRecorder()

	mon, err := monitor.New(cfg.Origin, cfg.Probing, log, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("initialise monitor")
	}
	if err := mon.Initialize(context.Background(), cfg.Services); err != nil {
		log.Fatal().Err(err).Msg("start monitor")
	}
	defer mon.Stop()

	relay := server.NewRelay(cfg.Probing.Timeout(), log)
	srv := server.New(cfg.ListenAddr, mon, relay, rec, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("origin", cfg.Origin).Msg("labmonitor listening")
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
