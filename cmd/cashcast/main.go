// Command cashcast runs the cash-flow forecasting pipeline: it extracts
// the configured weekly batches, trains the ensemble and records the
// next-week predictions under the tracking store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cashcast/internal/config"
	"cashcast/internal/extract"
	"cashcast/internal/infrastructure"
	"cashcast/internal/pipeline"
	"cashcast/internal/tracking"
)

func main() {
	configFile := flag.String("config", "cashcast.yml", "path to the YAML configuration file")
	startWeek := flag.Int("start-week", -1, "first training week (overrides config)")
	endWeek := flag.Int("end-week", -1, "last training week, inclusive (overrides config)")
	nextWeek := flag.Int("next-week", -1, "week to forecast (overrides config)")
	nextDate := flag.String("next-date", "", "any date inside the week to forecast, YYYY-MM-DD (overrides config and -next-week)")
	dataDir := flag.String("data", "", "data directory holding the weekly batches (overrides config)")
	trace := flag.Bool("trace", false, "emit OTel spans to stdout")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *startWeek >= 0 {
		cfg.Pipeline.StartWeek = *startWeek
	}
	if *endWeek >= 0 {
		cfg.Pipeline.EndWeek = *endWeek
	}
	if *nextWeek >= 0 {
		cfg.Pipeline.NextWeek = *nextWeek
	}
	if *nextDate != "" {
		week, err := nextWeekFromDate(*nextDate, cfg.Data.YearMin)
		if err != nil {
			slog.Error("Invalid -next-date", "error", err)
			os.Exit(1)
		}
		cfg.Pipeline.NextWeek = week
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	tracing, err := infrastructure.InitializeTracing(*trace)
	if err != nil {
		logger.Error("Failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	store, err := tracking.Open(cfg.Tracking.Dir, logger)
	if err != nil {
		logger.Error("Failed to open tracking store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting forecast pipeline",
		slog.Int("start_week", cfg.Pipeline.StartWeek),
		slog.Int("end_week", cfg.Pipeline.EndWeek),
		slog.Int("next_week", cfg.Pipeline.NextWeek),
		slog.String("data_dir", cfg.Data.Dir),
	)

	runner := pipeline.NewRunner(cfg, store, tracing.Tracer, logger)
	if err := runner.Run(ctx); err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Pipeline complete")
}

// nextWeekFromDate resolves a calendar date to the batch week number it
// falls in. yearMin anchors the numbering; zero anchors it to the date's
// own year.
func nextWeekFromDate(value string, yearMin int) (int, error) {
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return 0, fmt.Errorf("parse next date: %w", err)
	}
	if yearMin == 0 {
		yearMin = date.Year()
	}
	return extract.WeekIndex(date, yearMin), nil
}
