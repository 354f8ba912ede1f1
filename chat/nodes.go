package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/agentic-rag/rag"
)

type stageFunc func(ctx context.Context, st State, logger *zap.Logger) (Delta, error)

func (s *Service) stageTable() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageRouter:              s.route,
		StageWebSearch:           s.webSearch,
		StageVectorRetrieve:      s.vectorRetrieve,
		StageCypherTranslate:     s.cypherTranslate,
		StageCypherRetrieve:      s.cypherRetrieve,
		StageRelevanceGrade:      s.relevanceGrade,
		StageQueryTransform:      s.queryTransform,
		StageVectorRetrieveBatch: s.vectorRetrieveBatch,
		StageFuse:                s.fuse,
		StageGenerate:            s.generate,
		StageGroundednessGrade:   s.groundednessGrade,
		StageQualityReview:       s.qualityReview,
		StageFallback:            s.fallback,
	}
}

func (s *Service) route(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	decision, err := s.deps.Router.Route(ctx, st.Question)
	if err != nil {
		if errors.Is(err, rag.ErrRoutingUnavailable) || isContextErr(err) {
			return Delta{}, err
		}
		return Delta{}, &rag.RoutingError{Err: err}
	}
	if !decision.Valid() {
		return Delta{}, &rag.RoutingError{Label: string(decision)}
	}

	logger.Info("question routed", zap.String("route", decision.String()))
	return Delta{Route: ptr(decision)}, nil
}

func (s *Service) webSearch(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	result, err := s.deps.Web.Search(ctx, st.Question)
	if err != nil {
		return Delta{}, retrievalErr("websearch", err)
	}
	logger.Debug("web search completed", zap.Int("documents", len(result.Documents)))
	return Delta{Documents: ptr(result.Documents)}, nil
}

func (s *Service) vectorRetrieve(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	result, err := s.deps.Vector.Search(ctx, st.Question)
	if err != nil {
		return Delta{}, retrievalErr("vectorstore", err)
	}
	logger.Debug("vector search completed", zap.Int("documents", len(result.Documents)))
	return Delta{Documents: ptr(result.Documents)}, nil
}

func (s *Service) cypherTranslate(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	query, err := s.deps.Translator.Translate(ctx, st.Question)
	switch {
	case err == nil:
		logger.Debug("question translated", zap.String("cypher", query))
		return Delta{StructuredQuery: ptr(query), TranslationDeclined: ptr(false)}, nil
	case errors.Is(err, rag.ErrTranslationDeclined):
		logger.Info("translation declined", zap.Error(err))
		return Delta{StructuredQuery: ptr(""), TranslationDeclined: ptr(true)}, nil
	case errors.Is(err, rag.ErrRetrievalFailure), isContextErr(err):
		return Delta{}, err
	default:
		return Delta{}, &rag.CapabilityError{Capability: "cypher translator", Err: err}
	}
}

func (s *Service) cypherRetrieve(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	if st.TranslationDeclined || strings.TrimSpace(st.StructuredQuery) == "" {
		return Delta{Documents: ptr([]rag.Document{})}, nil
	}

	result, err := s.deps.Executor.Execute(ctx, st.StructuredQuery)
	if err != nil {
		return Delta{}, retrievalErr("neo4j", err)
	}
	logger.Debug("graph query completed", zap.Int("rows", len(result.Documents)))
	return Delta{Documents: ptr(result.Documents)}, nil
}

// relevanceGrade keeps only the documents judged relevant to the original
// question. Every document is graded again on each pass.
func (s *Service) relevanceGrade(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	retained := make([]rag.Document, 0, len(st.Documents))
	for _, doc := range st.Documents {
		verdict, err := s.deps.Relevance.GradeRelevance(ctx, st.Question, doc)
		if err != nil {
			return Delta{}, capabilityErr("relevance grader", err)
		}
		if verdict.Yes() {
			retained = append(retained, doc)
		}
	}
	s.recorder.DocumentsGraded(len(retained), len(st.Documents))

	logger.Debug("documents graded",
		zap.Int("retained", len(retained)),
		zap.Int("total", len(st.Documents)),
		zap.Int("transform_cycles", st.TransformCycles),
	)

	delta := Delta{Documents: ptr(retained)}
	if len(retained) == 0 && st.TransformCycles >= s.cfg.MaxTransformCycles {
		logger.Info("transform cycles exhausted, generating without documents",
			zap.Int("transform_cycles", st.TransformCycles),
		)
		delta.RetryExhausted = ptr(true)
	}
	return delta, nil
}

func (s *Service) queryTransform(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	variants, err := s.deps.Rewriter.Expand(ctx, st.Question)
	if err != nil {
		return Delta{}, capabilityErr("query transformer", err)
	}
	if len(variants) == 0 {
		return Delta{}, &rag.CapabilityError{Capability: "query transformer", Err: fmt.Errorf("no variants produced")}
	}

	logger.Info("question reformulated", zap.Strings("variants", variants))
	return Delta{
		Variants:        ptr(variants),
		TransformCycles: ptr(st.TransformCycles + 1),
	}, nil
}

// vectorRetrieveBatch runs one search per variant and waits for all of them.
// Results stay parallel to the variants.
func (s *Service) vectorRetrieveBatch(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	if batch, ok := s.deps.Vector.(rag.BatchVectorSearcher); ok {
		results, err := batch.SearchBatch(ctx, st.Variants)
		if err != nil {
			return Delta{}, retrievalErr("vectorstore", err)
		}
		if len(results) != len(st.Variants) {
			return Delta{}, &rag.RetrievalError{
				Source: "vectorstore",
				Err:    fmt.Errorf("batch returned %d results for %d queries", len(results), len(st.Variants)),
			}
		}
		return Delta{BatchResults: ptr(results)}, nil
	}

	results := make([]rag.RetrievalResult, len(st.Variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchParallelism)
	for i, variant := range st.Variants {
		g.Go(func() error {
			result, err := s.deps.Vector.Search(gctx, variant)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Delta{}, retrievalErr("vectorstore", err)
	}

	logger.Debug("batch retrieval completed", zap.Int("queries", len(results)))
	return Delta{BatchResults: ptr(results)}, nil
}

func (s *Service) fuse(_ context.Context, st State, logger *zap.Logger) (Delta, error) {
	if ce := logger.Check(zap.DebugLevel, "fusion scores"); ce != nil {
		scores := s.fuser.Scores(st.BatchResults)
		fields := make([]zap.Field, 0, len(scores))
		for i, item := range scores {
			fields = append(fields, zap.Float64(fmt.Sprintf("doc_%d", i+1), item.Score))
		}
		ce.Write(fields...)
	}

	fused := s.fuser.Fuse(st.BatchResults)
	logger.Debug("results fused", zap.Int("lists", len(st.BatchResults)), zap.Int("documents", len(fused)))
	return Delta{Documents: ptr(fused)}, nil
}

func (s *Service) generate(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	generation, err := s.deps.Generator.Generate(ctx, st.Question, st.Documents)
	if err != nil {
		return Delta{}, capabilityErr("generator", err)
	}
	logger.Debug("answer generated", zap.Int("documents", len(st.Documents)))
	return Delta{Generation: ptr(generation)}, nil
}

func (s *Service) groundednessGrade(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	verdict, err := s.deps.Groundedness.GradeGroundedness(ctx, st.Question, st.Documents, st.Generation)
	if err != nil {
		return Delta{}, capabilityErr("groundedness grader", err)
	}
	logger.Debug("groundedness graded", zap.String("verdict", string(verdict)))
	return Delta{Grounded: ptr(verdict)}, nil
}

func (s *Service) qualityReview(ctx context.Context, st State, logger *zap.Logger) (Delta, error) {
	review, err := s.deps.Reviewer.Review(ctx, st.Question, st.Generation)
	if err != nil {
		return Delta{}, capabilityErr("reviewer", err)
	}

	answer := strings.TrimSpace(review.Answer)
	if !review.Relevant || answer == "" {
		logger.Info("answer rejected by review")
		return Delta{
			Answer:  ptr(s.cfg.FallbackMessage),
			Outcome: ptr(rag.OutcomeReviewRejected),
		}, nil
	}
	return Delta{Answer: ptr(answer), Outcome: ptr(rag.OutcomeAnswered)}, nil
}

func (s *Service) fallback(_ context.Context, _ State, logger *zap.Logger) (Delta, error) {
	logger.Info("answer not grounded, returning fallback")
	return Delta{
		Answer:  ptr(s.cfg.FallbackMessage),
		Outcome: ptr(rag.OutcomeGroundingRejected),
	}, nil
}

func retrievalErr(source string, err error) error {
	if errors.Is(err, rag.ErrRetrievalFailure) || isContextErr(err) {
		return err
	}
	return &rag.RetrievalError{Source: source, Err: err}
}

func capabilityErr(capability string, err error) error {
	if errors.Is(err, rag.ErrCapabilityFailure) || isContextErr(err) {
		return err
	}
	return &rag.CapabilityError{Capability: capability, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
