package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/infrastructure/jobs"
	"github.com/crosscheck-ai/crosscheck/infrastructure/metrics"
	"github.com/crosscheck-ai/crosscheck/internal/engine"
)

func main() {
	var (
		configPath = flag.String("config", "crosscheck.yaml", "Path to the YAML configuration file")
		task       = flag.String("task", "extract", "Task to run: search, extract, or summarize")
		models     = flag.String("models", "", "Comma-separated model IDs to compare")
		prompt     = flag.String("prompt", "", "Prompt sent to every model")
		source     = flag.String("source", "", "Optional source text file for grounding checks")
		listModels = flag.Bool("list", false, "List available models and exit")
		estimate   = flag.Bool("estimate", false, "Estimate cost without generating")
		async      = flag.Bool("async", false, "Run as a background job and poll for completion")
		verbose    = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}

	ctx := context.Background()

	store, err := engine.BuildStore(ctx, cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache store failed")
	}
	registry, err := engine.BuildRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("provider setup failed")
	}

	eng := engine.New(
		registry,
		store,
		jobs.NewQueue(store, logger),
		metrics.NewTracker(store, cfg.MetricsLogPath, logger),
		metrics.NewPrometheusCollector(prometheus.NewRegistry()),
		logger,
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithMaxModels(cfg.MaxCompareModels),
	)
	defer eng.Close()

	if *listModels {
		printJSON(eng.ListModels(ctx))
		return
	}

	modelIDs := splitModels(*models)
	if len(modelIDs) == 0 {
		logger.Fatal().Msg("at least one model is required; pass -models")
	}

	if *estimate {
		printJSON(eng.EstimateCost(modelIDs, *prompt, 0))
		return
	}

	req := engine.CompareRequest{
		Task:     engine.Task(*task),
		ModelIDs: modelIDs,
		Prompt:   *prompt,
	}
	if *source != "" {
		text, err := os.ReadFile(*source)
		if err != nil {
			logger.Fatal().Err(err).Msg("reading source text failed")
		}
		req.SourceText = string(text)
	}

	if *async {
		runAsync(ctx, eng, req, logger)
		return
	}

	resp, err := eng.Compare(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("comparison failed")
	}
	printJSON(resp)
	fmt.Fprintf(os.Stderr, "session cost: $%.4f\n", eng.SessionCost())
}

func runAsync(ctx context.Context, eng *engine.Engine, req engine.CompareRequest, logger zerolog.Logger) {
	jobID, err := eng.CompareAsync(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("starting job failed")
	}
	logger.Info().Str("job_id", jobID).Msg("job started")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		job, err := eng.JobStatus(ctx, jobID)
		if err != nil {
			logger.Fatal().Err(err).Msg("job vanished")
		}
		logger.Info().Str("state", string(job.State)).Int("percent", job.Percent).Msg("job progress")
		if job.State.Terminal() {
			printJSON(job)
			return
		}
	}
}

func splitModels(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode output:", err)
		os.Exit(1)
	}
}
