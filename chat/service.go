package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/fusion"
	"github.com/fabfab/agentic-rag/rag"
)

const (
	DefaultMaxTransformCycles = 1
	DefaultBatchParallelism   = 5
	DefaultRunTimeout         = 2 * time.Minute

	tracerName = "github.com/fabfab/agentic-rag/chat"
)

// Dependencies are the capabilities the pipeline calls. All are required.
type Dependencies struct {
	Router       rag.Router
	Vector       rag.VectorSearcher
	Translator   rag.Translator
	Executor     rag.StructuredQueryExecutor
	Web          rag.WebSearcher
	Relevance    rag.RelevanceGrader
	Rewriter     rag.VariantGenerator
	Generator    rag.Generator
	Groundedness rag.GroundednessGrader
	Reviewer     rag.Reviewer
}

func (d Dependencies) validate() error {
	missing := make([]string, 0)
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("router", d.Router != nil)
	check("vector searcher", d.Vector != nil)
	check("translator", d.Translator != nil)
	check("query executor", d.Executor != nil)
	check("web searcher", d.Web != nil)
	check("relevance grader", d.Relevance != nil)
	check("query rewriter", d.Rewriter != nil)
	check("generator", d.Generator != nil)
	check("groundedness grader", d.Groundedness != nil)
	check("reviewer", d.Reviewer != nil)

	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config tunes a Service. RRFK has no default.
type Config struct {
	RRFK               float64
	FusionTopK         int
	MaxTransformCycles int
	BatchParallelism   int
	RunTimeout         time.Duration
	FallbackMessage    string
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// Service answers questions by driving the retrieval state machine. It holds
// no per-run state and is safe for concurrent use.
type Service struct {
	deps     Dependencies
	cfg      Config
	fuser    *fusion.RRF
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	stages   map[Stage]stageFunc
}

func NewService(deps Dependencies, cfg Config, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	fuser, err := fusion.New(cfg.RRFK, cfg.FusionTopK)
	if err != nil {
		return nil, fmt.Errorf("configure fusion: %w", err)
	}
	if cfg.MaxTransformCycles < 0 {
		return nil, fmt.Errorf("max transform cycles must be >= 0, got %d", cfg.MaxTransformCycles)
	}
	if cfg.BatchParallelism <= 0 {
		cfg.BatchParallelism = DefaultBatchParallelism
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		return nil, fmt.Errorf("fallback message cannot be empty")
	}

	s := &Service{
		deps:     deps,
		cfg:      cfg,
		fuser:    fuser,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stages = s.stageTable()
	return s, nil
}

// Run answers one question. Non-fatal conditions (declined translation,
// exhausted retry, rejected grounding or review) are reported on the
// returned FinalAnswer; fatal ones are returned as a *StageError.
func (s *Service) Run(ctx context.Context, question string) (rag.FinalAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return rag.FinalAnswer{}, rag.ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	st := State{RunID: uuid.NewString(), Question: question}
	logger := s.logger.With(zap.String("run_id", st.RunID))

	ctx, span := s.tracer.Start(ctx, "rag.run", trace.WithAttributes(attribute.String("rag.run_id", st.RunID)))
	defer span.End()

	start := time.Now()
	final, err := s.drive(ctx, &st, logger)
	elapsed := time.Since(start)

	s.recorder.RunCompleted(string(st.Route), string(st.Outcome), elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		logger.Warn("run aborted",
			zap.String("route", string(st.Route)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return final, err
	}

	span.SetAttributes(attribute.String("rag.route", string(st.Route)), attribute.String("rag.outcome", string(st.Outcome)))
	logger.Info("run completed",
		zap.String("route", string(st.Route)),
		zap.String("outcome", string(st.Outcome)),
		zap.Int("transform_cycles", st.TransformCycles),
		zap.Int("stages", len(st.Stages)),
		zap.Duration("duration", elapsed),
	)
	return final, nil
}

// drive is the single loop that executes stages until TERMINAL.
func (s *Service) drive(ctx context.Context, st *State, logger *zap.Logger) (rag.FinalAnswer, error) {
	budget := maxSteps(s.cfg.MaxTransformCycles)
	stage := StageRouter

	for steps := 0; stage != StageTerminal; steps++ {
		if steps >= budget {
			return st.finalAnswer(), &StageError{Stage: stage, Err: ErrStepBudget}
		}
		if err := ctx.Err(); err != nil {
			return st.finalAnswer(), &StageError{Stage: stage, Err: err}
		}

		st.Stages = append(st.Stages, stage)
		delta, err := s.runStage(ctx, stage, st.view(), logger)
		if err != nil {
			return st.finalAnswer(), &StageError{Stage: stage, Err: err}
		}
		st.apply(delta)

		cond := condition(stage, *st, s.cfg.MaxTransformCycles)
		to, err := next(stage, cond)
		if err != nil {
			return st.finalAnswer(), &StageError{Stage: stage, Err: err}
		}

		logger.Debug("transition",
			zap.String("from", string(stage)),
			zap.String("condition", string(cond)),
			zap.String("to", string(to)),
		)
		s.recorder.Transition(string(stage), string(to), string(cond))
		stage = to
	}

	st.Stages = append(st.Stages, StageTerminal)
	return st.finalAnswer(), nil
}

func (s *Service) runStage(ctx context.Context, stage Stage, view State, logger *zap.Logger) (Delta, error) {
	fn, ok := s.stages[stage]
	if !ok {
		return Delta{}, fmt.Errorf("%w: stage %s has no handler", ErrNoTransition, stage)
	}

	ctx, span := s.tracer.Start(ctx, "rag.stage."+strings.ToLower(string(stage)))
	defer span.End()

	start := time.Now()
	delta, err := fn(ctx, view, logger)
	s.recorder.StageCompleted(string(stage), time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage)+" failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("stage interrupted", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	return delta, err
}
