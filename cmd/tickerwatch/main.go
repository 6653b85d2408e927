package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/evford/tickerwatch/internal/api"
	"github.com/evford/tickerwatch/internal/grok"
	"github.com/evford/tickerwatch/internal/limiter"
	"github.com/evford/tickerwatch/internal/monitor"
	"github.com/evford/tickerwatch/internal/xapi"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	cfg, err := monitor.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Poll.AutoStart && cfg.Search.BearerToken == "" {
		slog.Error("live polling enabled but SEARCH_BEARER_TOKEN is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rl := limiter.New()
	cfg.ConfigureLimiter(rl)

	search := xapi.NewClient(cfg.Search.BearerToken, rl)
	summaries := grok.NewClient(cfg.Model.APIKey, rl, grok.Options{
		BaseURL:        cfg.Model.BaseURL,
		FastModel:      cfg.Model.FastModel,
		ReasoningModel: cfg.Model.ReasoningModel,
	})
	if !summaries.Live() {
		slog.Warn("MODEL_API_KEY not set, bars will be metrics-only")
	}

	svc, err := monitor.New(cfg, search, summaries)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewServer(svc, version).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil {
			slog.Error("service stopped with error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
	}()

	slog.Info("tickerwatch listening", "addr", *addr, "version", version, "auto_start", cfg.Poll.AutoStart)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		stop()
		wg.Wait()
		os.Exit(1)
	}
	wg.Wait()
}
