package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	GraderLLM     = "llm"
	GraderKeyword = "keyword"

	DefaultFallbackMessage = "Sorry, I am not able to answer this question. Please contact customer service."
)

// Capability names double as the environment variables that select a model
// for that agent.
const (
	CapabilityRouter       = "ROUTER_LLM"
	CapabilityGrader       = "GRADER_LLM"
	CapabilityGenerator    = "ANSWER_GENERATOR_LLM"
	CapabilityRewriter     = "GENERATE_NEW_QUERY_LLM"
	CapabilityGroundedness = "HALLUCINATION_LLM"
	CapabilityReviewer     = "ANSWER_GRADER_LLM"
	CapabilityTranslator   = "CYPHER_TRANSLATOR_LLM"
)

// Capabilities lists every agent capability in pipeline order.
var Capabilities = []string{
	CapabilityRouter,
	CapabilityGrader,
	CapabilityGenerator,
	CapabilityRewriter,
	CapabilityGroundedness,
	CapabilityReviewer,
	CapabilityTranslator,
}

type Config struct {
	PostgresDSN   string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPass     string
	Neo4jDatabase string
	DataDir       string

	LLM        LLMConfig
	Embeddings EmbeddingsConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	WebSearch WebSearchConfig
	Pipeline  PipelineConfig

	HTTPAddr         string
	Log              LogConfig
	TracingStdout    bool
	MetricsNamespace string
}

type LLMConfig struct {
	Provider    string
	Model       string
	Models      map[string]string
	MaxTokens   int
	Temperature float64
}

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type WebSearchConfig struct {
	APIKey  string
	BaseURL string
	Count   int
}

// PipelineConfig tunes the retrieval state machine. RRFK has no default and
// must be provided.
type PipelineConfig struct {
	RRFK               float64
	FusionTopK         int
	VariantCount       int
	MaxTransformCycles int
	VectorSearchLimit  int
	GraphRowLimit      int
	BatchParallelism   int
	RunTimeout         time.Duration
	RelevanceGrader    string
	FallbackMessage    string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present), an optional config file and the process
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_dsn", "postgres://localhost:5432/agentic-rag?sslmode=disable")
	v.SetDefault("neo4j_uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j_username", "neo4j")
	v.SetDefault("neo4j_password", "password")
	v.SetDefault("neo4j_database", "")
	v.SetDefault("data_dir", "data")

	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_max_tokens", 512)
	v.SetDefault("llm_temperature", 0.0)

	v.SetDefault("embeddings_provider", ProviderOpenAI)
	v.SetDefault("embeddings_model", "text-embedding-3-small")
	v.SetDefault("embeddings_dimension", 1536)

	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")

	v.SetDefault("brave_api_key", "")
	v.SetDefault("brave_base_url", "")
	v.SetDefault("web_search_count", 5)

	v.SetDefault("fusion_top_k", 3)
	v.SetDefault("variant_count", 5)
	v.SetDefault("max_transform_cycles", 1)
	v.SetDefault("vector_search_limit", 5)
	v.SetDefault("graph_row_limit", 25)
	v.SetDefault("batch_parallelism", 5)
	v.SetDefault("run_timeout", 2*time.Minute)
	v.SetDefault("relevance_grader", GraderLLM)
	v.SetDefault("fallback_message", DefaultFallbackMessage)

	v.SetDefault("http_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("tracing_stdout", false)
	v.SetDefault("metrics_namespace", "agentic_rag")
}

func fromViper(v *viper.Viper) Config {
	models := make(map[string]string, len(Capabilities))
	for _, capability := range Capabilities {
		if model := strings.TrimSpace(v.GetString(strings.ToLower(capability))); model != "" {
			models[capability] = model
		}
	}

	cfg := Config{
		PostgresDSN:   v.GetString("postgres_dsn"),
		Neo4jURI:      v.GetString("neo4j_uri"),
		Neo4jUser:     v.GetString("neo4j_username"),
		Neo4jPass:     v.GetString("neo4j_password"),
		Neo4jDatabase: v.GetString("neo4j_database"),
		DataDir:       v.GetString("data_dir"),
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm_provider")),
			Model:       v.GetString("llm_model"),
			Models:      models,
			MaxTokens:   v.GetInt("llm_max_tokens"),
			Temperature: v.GetFloat64("llm_temperature"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  strings.ToLower(v.GetString("embeddings_provider")),
			Model:     v.GetString("embeddings_model"),
			Dimension: v.GetInt("embeddings_dimension"),
		},
		OllamaHost:    v.GetString("ollama_host"),
		OpenAIAPIKey:  v.GetString("openai_api_key"),
		OpenAIBaseURL: v.GetString("openai_base_url"),
		WebSearch: WebSearchConfig{
			APIKey:  v.GetString("brave_api_key"),
			BaseURL: v.GetString("brave_base_url"),
			Count:   v.GetInt("web_search_count"),
		},
		Pipeline: PipelineConfig{
			FusionTopK:         v.GetInt("fusion_top_k"),
			VariantCount:       v.GetInt("variant_count"),
			MaxTransformCycles: v.GetInt("max_transform_cycles"),
			VectorSearchLimit:  v.GetInt("vector_search_limit"),
			GraphRowLimit:      v.GetInt("graph_row_limit"),
			BatchParallelism:   v.GetInt("batch_parallelism"),
			RunTimeout:         v.GetDuration("run_timeout"),
			RelevanceGrader:    strings.ToLower(v.GetString("relevance_grader")),
			FallbackMessage:    v.GetString("fallback_message"),
		},
		HTTPAddr:         v.GetString("http_addr"),
		Log:              LogConfig{Level: v.GetString("log_level"), Format: v.GetString("log_format")},
		TracingStdout:    v.GetBool("tracing_stdout"),
		MetricsNamespace: v.GetString("metrics_namespace"),
	}

	if v.IsSet("rrf_k") {
		cfg.Pipeline.RRFK = v.GetFloat64("rrf_k")
	}

	return cfg
}

// ModelFor returns the model configured for a capability, falling back to
// the shared LLM model.
func (c Config) ModelFor(capability string) string {
	if model, ok := c.LLM.Models[capability]; ok && model != "" {
		return model
	}
	return c.LLM.Model
}

// ValidatePipeline checks the settings needed to answer questions. Ingestion
// and maintenance commands do not call it.
func (c Config) ValidatePipeline() error {
	var errs []error

	if c.Pipeline.RRFK < 1 {
		errs = append(errs, fmt.Errorf("RRF_K must be set to a value >= 1"))
	}
	if c.Pipeline.FusionTopK < 1 {
		errs = append(errs, fmt.Errorf("FUSION_TOP_K must be >= 1"))
	}
	if c.Pipeline.VariantCount < 1 {
		errs = append(errs, fmt.Errorf("VARIANT_COUNT must be >= 1"))
	}
	if c.Pipeline.MaxTransformCycles < 0 {
		errs = append(errs, fmt.Errorf("MAX_TRANSFORM_CYCLES must be >= 0"))
	}
	if c.Pipeline.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RUN_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.Pipeline.FallbackMessage) == "" {
		errs = append(errs, fmt.Errorf("FALLBACK_MESSAGE cannot be empty"))
	}
	switch c.Pipeline.RelevanceGrader {
	case GraderLLM, GraderKeyword:
	default:
		errs = append(errs, fmt.Errorf("unknown relevance grader: %s", c.Pipeline.RelevanceGrader))
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider: %s", c.LLM.Provider))
	}

	return errors.Join(errs...)
}
