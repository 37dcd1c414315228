package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

const (
	// windowSize bounds the per-model, per-task history kept hot in the
	// cache store.
	windowSize = 100
	// windowTTL expires idle windows.
	windowTTL = 24 * time.Hour
)

// Record is one generation outcome. Rating is a manual 1-5 quality
// score attached after the fact; zero means unrated.
type Record struct {
	ModelID   string                  `json:"model_id"`
	Task      string                  `json:"task"`
	Status    domain.GenerationStatus `json:"status"`
	ElapsedS  float64                 `json:"elapsed_s"`
	TokensIn  int                     `json:"tokens_in"`
	TokensOut int                     `json:"tokens_out"`
	CostUSD   float64                 `json:"cost_usd"`
	Rating    int                     `json:"rating,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Aggregate summarizes a model's recent history on one task.
// SuccessRate is a percentage in [0, 100]. Rated averages consider
// only records that carry a rating.
type Aggregate struct {
	ModelID     string  `json:"model_id"`
	Task        string  `json:"task"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
	AvgElapsedS float64 `json:"avg_elapsed_s"`
	AvgTokens   float64 `json:"avg_tokens"`
	AvgCost     float64 `json:"avg_cost_usd"`
	TotalCost   float64 `json:"total_cost_usd"`
	AvgRating   float64 `json:"avg_rating"`
	RatedCount  int     `json:"rated_count"`
}

// Tracker keeps a sliding window of outcomes per (model, task) in the
// shared cache store and appends every record to a JSONL log for
// cross-session aggregation. Session cost is in-memory only and counts
// successful generations.
type Tracker struct {
	store   ports.CacheStore
	logPath string
	logger  zerolog.Logger

	mu          sync.Mutex
	sessionCost float64
}

// NewTracker builds a tracker. An empty logPath disables the durable
// log; windows and session cost still work.
func NewTracker(store ports.CacheStore, logPath string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		logPath: logPath,
		logger:  logger.With().Str("component", "metrics").Logger(),
	}
}

// Track records one generation outcome everywhere: the bounded window,
// the JSONL log, and the session cost counter.
func (t *Tracker) Track(ctx context.Context, result domain.GenerationResult, task string) {
	rec := Record{
		ModelID:   result.ModelID,
		Task:      task,
		Status:    result.Status,
		ElapsedS:  result.ElapsedSeconds,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		CostUSD:   result.CostUSD,
		Timestamp: time.Now().UTC(),
	}

	window := t.loadWindow(ctx, rec.ModelID, task)
	window = append(window, rec)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	t.saveWindow(ctx, rec.ModelID, task, window)

	t.appendLog(rec)

	if result.Succeeded() {
		t.mu.Lock()
		t.sessionCost += result.CostUSD
		t.mu.Unlock()
	}
}

// RateModel attaches a 1-5 quality rating to the most recent record in
// the window. Ratings outside [1, 5] and empty windows are rejected
// without mutation.
func (t *Tracker) RateModel(ctx context.Context, modelID, task string, rating int) bool {
	if rating < 1 || rating > 5 {
		return false
	}
	window := t.loadWindow(ctx, modelID, task)
	if len(window) == 0 {
		return false
	}
	window[len(window)-1].Rating = rating
	t.saveWindow(ctx, modelID, task, window)
	return true
}

// ModelStats aggregates the window for one model and task. An empty
// window yields a zero aggregate, not an error.
func (t *Tracker) ModelStats(ctx context.Context, modelID, task string) Aggregate {
	return aggregate(modelID, task, t.loadWindow(ctx, modelID, task))
}

// TaskStats scans the durable log for one task and returns per-model
// aggregates ordered by success rate descending, then latency
// ascending, so the best-performing model comes first.
func (t *Tracker) TaskStats(task string) []Aggregate {
	byModel := make(map[string][]Record)
	for _, rec := range t.readLog() {
		if rec.Task == task {
			byModel[rec.ModelID] = append(byModel[rec.ModelID], rec)
		}
	}

	aggs := make([]Aggregate, 0, len(byModel))
	for modelID, recs := range byModel {
		aggs = append(aggs, aggregate(modelID, task, recs))
	}
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].SuccessRate != aggs[j].SuccessRate {
			return aggs[i].SuccessRate > aggs[j].SuccessRate
		}
		if aggs[i].AvgElapsedS != aggs[j].AvgElapsedS {
			return aggs[i].AvgElapsedS < aggs[j].AvgElapsedS
		}
		return aggs[i].ModelID < aggs[j].ModelID
	})
	return aggs
}

// SessionCost returns the spend accumulated by successful generations
// since process start.
func (t *Tracker) SessionCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionCost
}

// ResetSessionCost zeroes the session counter without touching windows
// or the durable log.
func (t *Tracker) ResetSessionCost() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionCost = 0
}

func aggregate(modelID, task string, recs []Record) Aggregate {
	agg := Aggregate{ModelID: modelID, Task: task, Count: len(recs)}
	if len(recs) == 0 {
		return agg
	}

	var successes int
	var elapsedSum, tokenSum, ratingSum float64
	for _, r := range recs {
		if r.Status == domain.StatusSuccess {
			successes++
		}
		elapsedSum += r.ElapsedS
		tokenSum += float64(r.TokensIn + r.TokensOut)
		agg.TotalCost += r.CostUSD
		if r.Rating > 0 {
			agg.RatedCount++
			ratingSum += float64(r.Rating)
		}
	}
	agg.SuccessRate = float64(successes) / float64(len(recs)) * 100
	agg.AvgElapsedS = elapsedSum / float64(len(recs))
	agg.AvgTokens = tokenSum / float64(len(recs))
	agg.AvgCost = agg.TotalCost / float64(len(recs))
	if agg.RatedCount > 0 {
		agg.AvgRating = ratingSum / float64(agg.RatedCount)
	}
	return agg
}

func windowKey(modelID, task string) string {
	return cache.Key("metrics", modelID, task)
}

func (t *Tracker) loadWindow(ctx context.Context, modelID, task string) []Record {
	raw, found, err := t.store.Get(ctx, windowKey(modelID, task))
	if err != nil || !found {
		return nil
	}
	var window []Record
	if err := json.Unmarshal(raw, &window); err != nil {
		t.logger.Warn().Str("model", modelID).Err(err).Msg("corrupt metrics window, resetting")
		return nil
	}
	return window
}

func (t *Tracker) saveWindow(ctx context.Context, modelID, task string, window []Record) {
	if err := t.store.Set(ctx, windowKey(modelID, task), window, windowTTL); err != nil {
		t.logger.Warn().Str("model", modelID).Err(err).Msg("metrics window write failed")
	}
}

// appendLog writes one JSONL line under the tracker lock. Log failures
// degrade to an in-memory-only tracker rather than breaking callers.
func (t *Tracker) appendLog(rec Record) {
	if t.logPath == "" {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.logger.Warn().Err(err).Msg("metrics log open failed")
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", line); err != nil {
		t.logger.Warn().Err(err).Msg("metrics log append failed")
	}
}

// readLog parses the JSONL log, skipping lines that fail to decode.
func (t *Tracker) readLog() []Record {
	if t.logPath == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.logPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var recs []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}
