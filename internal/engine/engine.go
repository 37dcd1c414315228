// Package engine orchestrates multi-model comparisons: it routes
// generations through the provider registry, normalizes and
// cross-checks the outputs, records metrics, and exposes the
// synchronous and job-backed asynchronous entry points.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
	"github.com/crosscheck-ai/crosscheck/infrastructure/jobs"
	"github.com/crosscheck-ai/crosscheck/infrastructure/metrics"
	"github.com/crosscheck-ai/crosscheck/infrastructure/provider"
	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// Task selects what the compared models are asked to do.
type Task string

const (
	TaskSearch    Task = "search"
	TaskExtract   Task = "extract"
	TaskSummarize Task = "summarize"
)

func (t Task) valid() bool {
	return t == TaskSearch || t == TaskExtract || t == TaskSummarize
}

// modelListTTL bounds how stale the cached aggregate catalog may get.
const modelListTTL = time.Hour

// ErrNotFound marks lookups of unknown jobs.
var ErrNotFound = fmt.Errorf("engine: not found")

// CompareRequest describes one multi-model comparison.
type CompareRequest struct {
	Task     Task           `json:"task"`
	ModelIDs []string       `json:"model_ids"`
	Prompt   string         `json:"prompt"`
	Params   map[string]any `json:"params,omitempty"`

	// SourceText grounds extraction and hallucination checks. When
	// empty for an extract task, the publication fetcher supplies it.
	SourceText  string `json:"source_text,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	Focus       string `json:"focus,omitempty"`

	// TemplateID names the prompt template when Prompt is empty.
	TemplateID string            `json:"template_id,omitempty"`
	Vars       map[string]string `json:"vars,omitempty"`
}

// PerModelResult is one model's contribution to a comparison.
type PerModelResult struct {
	ModelID       string                      `json:"model_id"`
	Generation    domain.GenerationResult     `json:"generation"`
	Extraction    *domain.Extraction          `json:"extraction,omitempty"`
	Structured    bool                        `json:"structured"`
	Entities      ports.EntityBag             `json:"entities,omitempty"`
	Hallucination *domain.HallucinationReport `json:"hallucination,omitempty"`
}

// CompareResponse aggregates every model's result with the
// cross-model comparison report.
type CompareResponse struct {
	Task    Task                     `json:"task"`
	Results []PerModelResult         `json:"results"`
	Report  *domain.ComparisonReport `json:"report,omitempty"`
}

// Engine wires the registry, cache, queue, tracker, and external
// collaborators behind one façade. Construct it once with New and
// release resources with Close.
type Engine struct {
	gen       ports.Generator
	store     ports.CacheStore
	queue     *jobs.Queue
	tracker   *metrics.Tracker
	collector ports.MetricsCollector

	fetcher  ports.PublicationFetcher
	renderer ports.PromptRenderer
	entities ports.EntityExtractor
	cleaner  ports.TextCleaner

	concurrency int
	maxModels   int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithFetcher installs the publication retrieval collaborator.
func WithFetcher(f ports.PublicationFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithRenderer installs the prompt template collaborator.
func WithRenderer(r ports.PromptRenderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithEntityExtractor installs the named-entity collaborator.
func WithEntityExtractor(x ports.EntityExtractor) Option {
	return func(e *Engine) { e.entities = x }
}

// WithTextCleaner installs the source-text normalizer.
func WithTextCleaner(c ports.TextCleaner) Option {
	return func(e *Engine) { e.cleaner = c }
}

// WithTracer installs an OpenTelemetry tracer for comparison spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithConcurrency caps simultaneous generations per comparison.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxModels caps how many models one comparison may request.
func WithMaxModels(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxModels = n
		}
	}
}

// New builds an engine over its mandatory dependencies.
func New(gen ports.Generator, store ports.CacheStore, queue *jobs.Queue, tracker *metrics.Tracker, collector ports.MetricsCollector, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		gen:         gen,
		store:       store,
		queue:       queue,
		tracker:     tracker,
		collector:   collector,
		concurrency: defaultConcurrency,
		maxModels:   defaultMaxCompareModels,
		logger:      logger.With().Str("component", "engine").Logger(),
		tracer:      noop.NewTracerProvider().Tracer("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases held resources. Safe to call once after use.
func (e *Engine) Close() error {
	if closer, ok := e.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// ListModels returns the aggregate catalog, cached for an hour so
// repeated listings do not hammer every backend.
func (e *Engine) ListModels(ctx context.Context) []domain.ModelInfo {
	key := cache.Key("models")
	if raw, found, err := e.store.Get(ctx, key); err == nil && found {
		var cached []domain.ModelInfo
		if json.Unmarshal(raw, &cached) == nil {
			return cached
		}
	}

	models := e.gen.ListModels(ctx)
	if len(models) > 0 {
		if err := e.store.Set(ctx, key, models, modelListTTL); err != nil {
			e.logger.Warn().Err(err).Msg("model list cache write failed")
		}
	}
	return models
}

// Compare runs one synchronous multi-model comparison. Individual
// model failures appear as failed per-model results; only request
// validation can make Compare itself fail.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) (CompareResponse, error) {
	ctx, span := e.tracer.Start(ctx, "engine.compare",
		trace.WithAttributes(
			attribute.String("task", string(req.Task)),
			attribute.Int("models", len(req.ModelIDs)),
		))
	defer span.End()

	prepared, err := e.prepare(ctx, req)
	if err != nil {
		return CompareResponse{}, err
	}
	results := e.fanOut(ctx, prepared, nil)
	return e.assemble(prepared, results), nil
}

// CompareAsync starts the comparison as a tracked job and returns its
// ID immediately. Progress advances per finished model; cancelling the
// job stops new model work while in-flight generations finish and are
// discarded.
func (e *Engine) CompareAsync(ctx context.Context, req CompareRequest) (string, error) {
	prepared, err := e.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	jobID := e.queue.Create(ctx, string(prepared.Task), len(prepared.ModelIDs))
	e.queue.Start(ctx, jobID)

	go func() {
		// The caller's context ends with their request; the job owns
		// its own lifetime.
		jobCtx := context.Background()
		total := len(prepared.ModelIDs)
		var finished atomic.Int32
		results := e.fanOut(jobCtx, prepared, func(modelID string, result PerModelResult) bool {
			status, ok := e.queue.Status(jobCtx, jobID)
			if !ok || status.State.Terminal() {
				return false
			}
			// The last progress update is withheld: reporting it would
			// auto-complete the job before the assembled response is
			// attached. Complete below carries the full response.
			if int(finished.Add(1)) == total {
				return true
			}
			partial, err := json.Marshal(result)
			if err != nil {
				e.queue.UpdateProgress(jobCtx, jobID, map[string]any{modelID: "unserializable result"})
				return true
			}
			e.queue.UpdateProgress(jobCtx, jobID, map[string]any{modelID: json.RawMessage(partial)})
			return true
		})

		status, ok := e.queue.Status(jobCtx, jobID)
		if !ok || status.State.Terminal() {
			return
		}
		resp := e.assemble(prepared, results)
		encoded, err := json.Marshal(resp)
		if err != nil {
			e.queue.Fail(jobCtx, jobID, "encode comparison response: "+err.Error())
			return
		}
		e.queue.Complete(jobCtx, jobID, map[string]any{"response": json.RawMessage(encoded)})
	}()

	return jobID, nil
}

// JobStatus reports an async comparison's state. Unknown IDs return
// ErrNotFound rather than a zero job.
func (e *Engine) JobStatus(ctx context.Context, jobID string) (jobs.Job, error) {
	job, ok := e.queue.Status(ctx, jobID)
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return job, nil
}

// CancelJob requests cooperative cancellation. The boolean reports
// whether the job was still cancellable; a job that already finished
// returns false without an error, keeping its result intact.
func (e *Engine) CancelJob(ctx context.Context, jobID string) (bool, error) {
	if _, ok := e.queue.Status(ctx, jobID); !ok {
		return false, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return e.queue.Cancel(ctx, jobID), nil
}

// RecordRating attaches a manual 1-5 quality score to a model's most
// recent generation on a task.
func (e *Engine) RecordRating(ctx context.Context, modelID string, task Task, rating int) bool {
	return e.tracker.RateModel(ctx, modelID, string(task), rating)
}

// ModelStats summarizes a model's recent history on a task.
func (e *Engine) ModelStats(ctx context.Context, modelID string, task Task) metrics.Aggregate {
	return e.tracker.ModelStats(ctx, modelID, string(task))
}

// TaskStats ranks every model seen on a task, best first.
func (e *Engine) TaskStats(task Task) []metrics.Aggregate {
	return e.tracker.TaskStats(string(task))
}

// SessionCost reports this process's successful-generation spend.
func (e *Engine) SessionCost() float64 { return e.tracker.SessionCost() }

// EstimateCost predicts spend per model for a prompt, assuming the
// full output budget is consumed. Estimates use the static price
// table, so they are approximations.
func (e *Engine) EstimateCost(modelIDs []string, prompt string, maxOutputTokens int) map[string]float64 {
	tokensIn := (len(prompt) + 3) / 4
	if maxOutputTokens <= 0 {
		maxOutputTokens = 2000
	}
	out := make(map[string]float64, len(modelIDs))
	for _, id := range modelIDs {
		out[id] = provider.EstimateCost(id, tokensIn, maxOutputTokens)
	}
	return out
}

// prepare validates the request and resolves prompt and source text.
func (e *Engine) prepare(ctx context.Context, req CompareRequest) (CompareRequest, error) {
	invalid := domain.NewValidationError("compare request")
	if !req.Task.valid() {
		invalid.AddError(fmt.Sprintf("unknown task %q", req.Task))
	}
	if len(req.ModelIDs) == 0 {
		invalid.AddError("at least one model is required")
	}
	if len(req.ModelIDs) > e.maxModels {
		invalid.AddError(fmt.Sprintf("%d models requested, limit is %d", len(req.ModelIDs), e.maxModels))
	}
	if invalid.HasErrors() {
		return req, invalid
	}

	if req.Prompt == "" {
		if e.renderer == nil || req.TemplateID == "" {
			invalid.AddError("a prompt or a template is required")
			return req, invalid
		}
		rendered, err := e.renderer.Render(req.TemplateID, strings.Join(req.ModelIDs, ","), req.Vars)
		if err != nil {
			return req, fmt.Errorf("engine: render prompt: %w", err)
		}
		req.Prompt = rendered
	}

	if req.Task == TaskExtract && req.SourceText == "" && e.fetcher != nil {
		text, err := e.fetchSource(ctx, req)
		if err != nil {
			e.logger.Warn().Err(err).Msg("source retrieval failed, extraction proceeds ungrounded")
		} else {
			req.SourceText = text
		}
	}
	if req.SourceText != "" && e.cleaner != nil {
		req.SourceText = e.cleaner.Clean(req.SourceText)
	}
	return req, nil
}

func (e *Engine) fetchSource(ctx context.Context, req CompareRequest) (string, error) {
	candidates, err := e.fetcher.FetchCandidates(ctx, req.SubjectID, req.SubjectName, req.Focus)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no publications found")
	}
	return e.fetcher.FullText(ctx, candidates[0])
}

// fanOut generates across models with bounded concurrency. onResult,
// when non-nil, receives each finished result and returns false to
// stop scheduling further models.
func (e *Engine) fanOut(ctx context.Context, req CompareRequest, onResult func(string, PerModelResult) bool) []PerModelResult {
	results := make([]PerModelResult, len(req.ModelIDs))

	var stopped atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, modelID := range req.ModelIDs {
		if stopped.Load() {
			break
		}
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			result := e.generateOne(gctx, req, modelID)
			results[i] = result
			if onResult != nil && !onResult(modelID, result) {
				stopped.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error().Err(err).Msg("comparison group failed")
	}
	if stopped.Load() {
		return nil
	}
	return results
}

// generateOne runs a single model end to end: generate, record
// metrics, and normalize structured output.
func (e *Engine) generateOne(ctx context.Context, req CompareRequest, modelID string) PerModelResult {
	e.collector.IncInFlight()
	defer e.collector.DecInFlight()

	generation := e.gen.Generate(ctx, modelID, req.Prompt, req.Params)

	e.tracker.Track(ctx, generation, string(req.Task))
	e.collector.ObserveGeneration(modelID, string(req.Task), generation.Status,
		time.Duration(generation.ElapsedSeconds*float64(time.Second)), generation.CostUSD)

	result := PerModelResult{ModelID: modelID, Generation: generation}
	if !generation.Succeeded() {
		return result
	}

	extraction, structured := domain.ParseExtraction(generation.Text)
	result.Extraction = &extraction
	result.Structured = structured

	if req.Task == TaskExtract && e.entities != nil {
		result.Entities = e.entities.Extract(generation.Text)
	}
	return result
}

// assemble attaches hallucination reports and the cross-model
// comparison to the finished per-model results.
func (e *Engine) assemble(req CompareRequest, results []PerModelResult) CompareResponse {
	resp := CompareResponse{Task: req.Task, Results: results}

	var extractions []domain.Extraction
	var modelIDs []string
	for _, r := range results {
		if r.Extraction != nil {
			extractions = append(extractions, *r.Extraction)
			modelIDs = append(modelIDs, r.ModelID)
		}
	}

	for i := range resp.Results {
		r := &resp.Results[i]
		if r.Extraction == nil || req.SourceText == "" {
			continue
		}
		siblings := make([]domain.Extraction, 0, len(extractions)-1)
		for j, ex := range extractions {
			if modelIDs[j] != r.ModelID {
				siblings = append(siblings, ex)
			}
		}
		report := domain.DetectHallucinations(*r.Extraction, req.SourceText, siblings)
		r.Hallucination = &report
	}

	if len(extractions) >= 2 {
		report := domain.GenerateReport(extractions, modelIDs)
		resp.Report = &report
	}
	return resp
}
