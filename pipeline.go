package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/agents"
	"github.com/fabfab/agentic-rag/chat"
	"github.com/fabfab/agentic-rag/config"
	"github.com/fabfab/agentic-rag/database"
	"github.com/fabfab/agentic-rag/embeddings"
	"github.com/fabfab/agentic-rag/knowledge"
	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
	"github.com/fabfab/agentic-rag/retrieval"
)

// stores holds the database handles shared by ingestion and retrieval.
type stores struct {
	pool     *pgxpool.Pool
	driver   neo4j.DriverWithContext
	graph    *knowledge.Store
	embedder embeddings.Embedder
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("neo4j connection: %w", err)
	}

	return &stores{
		pool:     pool,
		driver:   driver,
		graph:    knowledge.NewStore(driver),
		embedder: embedder,
	}, nil
}

func (s *stores) Close() {
	_ = s.driver.Close(context.Background())
	s.pool.Close()
}

type pipeline struct {
	*stores
	service *chat.Service
}

// newPipeline wires one LLM client per capability into the orchestrator.
func newPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger, recorder chat.Recorder) (*pipeline, error) {
	s, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps, err := buildDependencies(cfg, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := []chat.Option{chat.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, chat.WithRecorder(recorder))
	}

	service, err := chat.NewService(deps, chat.Config{
		RRFK:               cfg.Pipeline.RRFK,
		FusionTopK:         cfg.Pipeline.FusionTopK,
		MaxTransformCycles: cfg.Pipeline.MaxTransformCycles,
		BatchParallelism:   cfg.Pipeline.BatchParallelism,
		RunTimeout:         cfg.Pipeline.RunTimeout,
		FallbackMessage:    cfg.Pipeline.FallbackMessage,
	}, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &pipeline{stores: s, service: service}, nil
}

func buildDependencies(cfg config.Config, s *stores, logger *zap.Logger) (chat.Dependencies, error) {
	clients, err := llm.NewClients(cfg)
	if err != nil {
		return chat.Dependencies{}, err
	}
	for _, capability := range config.Capabilities {
		logger.Debug("llm client configured",
			zap.String("capability", capability),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.ModelFor(capability)),
		)
	}

	web, err := retrieval.NewBraveSearcher(cfg.WebSearch.APIKey,
		retrieval.WithBraveBaseURL(cfg.WebSearch.BaseURL),
		retrieval.WithBraveCount(cfg.WebSearch.Count),
	)
	if err != nil {
		return chat.Dependencies{}, fmt.Errorf("web search setup: %w", err)
	}

	var relevance rag.RelevanceGrader = agents.NewRelevanceGrader(clients.For(config.CapabilityGrader))
	if cfg.Pipeline.RelevanceGrader == config.GraderKeyword {
		relevance = agents.NewKeywordRelevanceGrader()
	}

	return chat.Dependencies{
		Router: agents.NewRouter(clients.For(config.CapabilityRouter)),
		Vector: retrieval.NewPostgresVectorStore(s.pool, s.embedder, retrieval.VectorStoreConfig{
			Limit:       cfg.Pipeline.VectorSearchLimit,
			Parallelism: cfg.Pipeline.BatchParallelism,
		}),
		Translator: agents.NewCypherTranslator(
			clients.For(config.CapabilityTranslator),
			knowledge.NewSchemaDescriber(s.driver, cfg.Neo4jDatabase),
		),
		Executor:     retrieval.NewNeo4jExecutor(s.driver, cfg.Neo4jDatabase, cfg.Pipeline.GraphRowLimit),
		Web:          web,
		Relevance:    relevance,
		Rewriter:     agents.NewQueryRewriter(clients.For(config.CapabilityRewriter), cfg.Pipeline.VariantCount).WithLogger(logger),
		Generator:    agents.NewGenerator(clients.For(config.CapabilityGenerator)),
		Groundedness: agents.NewGroundednessGrader(clients.For(config.CapabilityGroundedness)),
		Reviewer:     agents.NewReviewer(clients.For(config.CapabilityReviewer)),
	}, nil
}
