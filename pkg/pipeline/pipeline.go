// Package pipeline answers natural-language questions over an in-memory
// dataset: classify, check for ambiguity, generate a query by
// self-consistency voting, dry-run it on a sample, execute it and format the
// answer. Every failure after the ambiguity check falls back to a
// keyword-matched aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/metrics"
	"github.com/malbeclabs/nlquery/pkg/query"
)

const (
	defaultSamples           = 3
	defaultParallelism       = 3
	defaultGenerationTimeout = 30 * time.Second
	defaultDryRunRows        = 100
	defaultMaxDataRows       = 100
	defaultSummaryRows       = 20
	defaultMaxSummaryWords   = 150
	defaultHistoryThreshold  = 0.5
	defaultMaxExamples       = 3
)

// Config holds the configuration for the pipeline.
type Config struct {
	Logger *slog.Logger
	// LLM may be nil, in which case every question is answered by the
	// fallback aggregation.
	LLM      LLMClient
	Indexer  *indexer.Indexer
	Metadata *metadata.Cache
	Analyzer *metadata.Analyzer
	Prompts  *Prompts

	Samples           int           // Completions per question (default 3)
	Parallelism       int           // Concurrent completions (default 3)
	GenerationTimeout time.Duration // Deadline shared by all completions (default 30s)
	DryRunRows        int           // Sample size for validation (default 100)
	MaxDataRows       int           // Rows returned in Result.Data (default 100)
	SummaryRows       int           // Rows shown to the LLM for summaries (default 20)
	MaxSummaryWords   int           // Summary length cap (default 150)
	HistoryThreshold  float64       // Minimum keyword similarity for examples (default 0.5)
	MaxExamples       int           // History examples in the prompt (default 3)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return err
		}
		cfg.Prompts = p
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = metadata.DefaultAnalyzer()
	}
	if cfg.Samples <= 0 {
		cfg.Samples = defaultSamples
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.DryRunRows <= 0 {
		cfg.DryRunRows = defaultDryRunRows
	}
	if cfg.MaxDataRows <= 0 {
		cfg.MaxDataRows = defaultMaxDataRows
	}
	if cfg.SummaryRows <= 0 {
		cfg.SummaryRows = defaultSummaryRows
	}
	if cfg.MaxSummaryWords <= 0 {
		cfg.MaxSummaryWords = defaultMaxSummaryWords
	}
	if cfg.HistoryThreshold <= 0 {
		cfg.HistoryThreshold = defaultHistoryThreshold
	}
	if cfg.MaxExamples <= 0 {
		cfg.MaxExamples = defaultMaxExamples
	}
	return nil
}

// Pipeline orchestrates question answering. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// outcome is an executed query before it is turned into a Result.
type outcome struct {
	result      *query.Result
	text        string
	method      Method
	confidence  float64
	explanation string
	answer      string
	warnings    []string
}

// Run answers a question. It never returns an error: failures are reported
// in the Result.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline: panic", "panic", r, "stack", string(debug.Stack()))
			result = &Result{
				Answer:      "Something went wrong while answering the question.",
				Explanation: fmt.Sprintf("internal error: %v", r),
				ErrorKind:   KindExecutionError,
			}
		}
		status := "success"
		switch {
		case result.NeedsClarification:
			status = "clarification"
		case !result.Success:
			status = "failure"
		case result.ErrorKind == KindEmptyResultSet:
			status = "empty"
		}
		method := string(result.Method)
		if method == "" {
			method = "none"
		}
		metrics.PipelineRequestsTotal.WithLabelValues(method, status).Inc()
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	ds := dataset.New(req.DatasetID, req.Rows, req.Columns)
	cq := Classify(req.Question)
	md := p.metadata(ds)
	log := p.log.With("dataset", ds.ID, "type", cq.Type)

	if clar := DetectAmbiguity(req.Question, cq, md); clar != nil {
		log.Info("pipeline: question needs clarification", "reason", clar.Reason)
		return &Result{
			Answer:                 "I need a little more detail to answer this: " + clar.Reason + ".",
			Explanation:            clar.Reason,
			NeedsClarification:     true,
			ClarificationQuestions: clar.Questions,
			ErrorKind:              KindAmbiguousQuestion,
			Classification:         &cq,
		}
	}

	if ds.Len() == 0 {
		return &Result{
			Success:        true,
			Answer:         "The dataset has no rows, so there is nothing to answer from.",
			Explanation:    "The dataset is empty.",
			Data:           []dataset.Row{},
			ErrorKind:      KindEmptyResultSet,
			Classification: &cq,
		}
	}

	idx := p.index(ctx, ds)

	if p.cfg.LLM == nil {
		return p.fallback(ctx, req.Question, cq, md, ds, idx, ErrLLMUnavailable, nil)
	}

	examples := SimilarExamples(cq.Keywords, req.History, p.cfg.HistoryThreshold, p.cfg.MaxExamples)
	cons, err := p.Generate(ctx, req.Question, md, ds, examples)
	if err != nil {
		log.Warn("pipeline: generation failed", "error", err)
		return p.fallback(ctx, req.Question, cq, md, ds, idx, err, nil)
	}
	log.Info("pipeline: consensus", "votes", cons.Votes, "total", cons.Total, "confidence", cons.Confidence, "query", cons.Query)
	if cons.Sentinel {
		return p.fallback(ctx, req.Question, cq, md, ds, idx,
			fmt.Errorf("%w: %s", ErrNoUsableQuery, cons.Explanation), nil)
	}

	var warnings []string
	if cons.TimedOut {
		warnings = append(warnings, fmt.Sprintf("Only %d of %d query candidates completed in time.", len(cons.Candidates), p.cfg.Samples))
	}

	dry, err := DryRun(ctx, cons.Query, ds, p.cfg.DryRunRows)
	if err != nil {
		log.Warn("pipeline: dry run failed", "error", err)
		var verr *ValidationError
		if errors.As(err, &verr) {
			warnings = append(warnings, verr.Suggestion)
		}
		return p.fallback(ctx, req.Question, cq, md, ds, idx, err, warnings)
	}
	for i := range cons.Candidates {
		if cons.Candidates[i].Index == cons.Winner {
			cons.Candidates[i].ValidatedBySample = !dry.EmptySample
		}
	}
	if dry.EmptySample {
		warnings = append(warnings, dry.Warning)
	}

	res, err := query.Execute(ctx, dry.Query, ds, query.Options{Index: idx})
	if err != nil {
		log.Warn("pipeline: execution failed", "error", err)
		return p.fallback(ctx, req.Question, cq, md, ds, idx, err, warnings)
	}

	return p.finish(ctx, req.Question, &cq, ds, &outcome{
		result:      res,
		text:        cons.Query,
		method:      MethodGenerated,
		confidence:  cons.Confidence,
		explanation: cons.Explanation,
		warnings:    warnings,
	})
}

// fallback answers with a keyword-matched aggregation after cause prevented
// the generated path. If that fails too, the result lists the real columns.
func (p *Pipeline) fallback(ctx context.Context, question string, cq ClassifiedQuestion, md *metadata.DatasetMetadata, ds *dataset.Dataset, idx *indexer.DatasetIndex, cause error, warnings []string) *Result {
	kind := KindOf(cause)
	var verr *ValidationError
	if errors.As(cause, &verr) {
		kind = verr.Kind
	}

	out, err := p.runFallback(ctx, question, cq, md, ds, idx)
	if err != nil {
		p.log.Warn("pipeline: fallback failed", "error", err, "cause", cause)
		return &Result{
			Answer: fmt.Sprintf("I couldn't understand the question. The dataset has these columns: %s.",
				strings.Join(ds.Columns, ", ")),
			Explanation:    "No query could be generated and no column matched the question.",
			Warnings:       warnings,
			ErrorKind:      kind,
			Classification: &cq,
		}
	}

	out.warnings = append(warnings, "Answered with a keyword-based aggregation because the generated query could not be used ("+string(kind)+").")
	res := p.finish(ctx, question, &cq, ds, out)
	if res.ErrorKind == "" {
		res.ErrorKind = kind
	}
	return res
}

func (p *Pipeline) finish(ctx context.Context, question string, cq *ClassifiedQuestion, ds *dataset.Dataset, out *outcome) *Result {
	res := out.result
	result := &Result{
		Success:        true,
		Columns:        res.Columns,
		RowCount:       len(res.Rows),
		Query:          out.text,
		Confidence:     out.confidence,
		Method:         out.method,
		Explanation:    out.explanation,
		Warnings:       out.warnings,
		Classification: cq,
	}

	if res.Empty() {
		result.Data = []dataset.Row{}
		result.ErrorKind = KindEmptyResultSet
		result.Answer = "No rows matched the question. Try a broader filter or check the values used in the query."
		if out.answer != "" {
			result.Answer = out.answer
		}
		return result
	}

	result.Data = res.Rows[:min(len(res.Rows), p.cfg.MaxDataRows)]
	result.Answer = out.answer
	if result.Answer == "" {
		result.Answer = p.FormatAnswer(ctx, question, res, ds.Len())
	}
	return result
}

func (p *Pipeline) metadata(ds *dataset.Dataset) *metadata.DatasetMetadata {
	if p.cfg.Metadata != nil {
		return p.cfg.Metadata.Get(ds)
	}
	return p.cfg.Analyzer.Analyze(ds)
}

// index returns the dataset index, or nil when no indexer is configured or
// the build fails. Queries are correct without it.
func (p *Pipeline) index(ctx context.Context, ds *dataset.Dataset) *indexer.DatasetIndex {
	if p.cfg.Indexer == nil {
		return nil
	}
	idx, err := p.cfg.Indexer.GetOrBuild(ctx, ds)
	if err != nil {
		p.log.Warn("pipeline: index unavailable", "dataset", ds.ID, "error", err)
		return nil
	}
	return idx
}
