package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/rag"
)

// Answerer runs the pipeline for one question. *chat.Service implements it.
type Answerer interface {
	Run(ctx context.Context, question string) (rag.FinalAnswer, error)
}

// Ingestor loads a directory of documents into the stores.
type Ingestor interface {
	IngestDirectory(ctx context.Context, dir string) error
}

// Clearer removes every ingested record from the stores.
type Clearer interface {
	Clear(ctx context.Context) error
}

// HTTPRecorder receives request measurements. metrics.Collector implements it.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Error codes returned in the error envelope.
const (
	CodeInvalidQuestion    = "invalid_question"
	CodeRoutingUnavailable = "routing_unavailable"
	CodeRetrievalFailure   = "retrieval_failure"
	CodeCapabilityFailure  = "capability_failure"
	CodeTimeout            = "timeout"
	CodeInvalidRequest     = "invalid_request"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal"
)

const welcomeMessage = "Welcome to the agentic RAG API. POST a question to /invoke."

type messageResponse struct {
	Message string `json:"message"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type invokeRequest struct {
	Question string `json:"question"`
}

type invokeResponse struct {
	Result string `json:"result"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type Option func(*Server)

// WithIngestor enables POST /v1/ingest.
func WithIngestor(ingestor Ingestor, defaultDir string) Option {
	return func(s *Server) {
		s.ingestor = ingestor
		s.dataDir = defaultDir
	}
}

// WithClearer enables POST /v1/clear.
func WithClearer(clearer Clearer) Option {
	return func(s *Server) {
		s.clearer = clearer
	}
}

// WithMetrics records request metrics and serves GET /metrics from gatherer.
func WithMetrics(recorder HTTPRecorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.recorder = recorder
		s.gatherer = gatherer
	}
}

// Server exposes HTTP handlers for the question answering pipeline.
type Server struct {
	answerer Answerer
	ingestor Ingestor
	clearer  Clearer
	dataDir  string
	recorder HTTPRecorder
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	engine   *gin.Engine
}

// New constructs a Server around answerer.
func New(answerer Answerer, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{answerer: answerer, logger: logger.With(zap.String("component", "api"))}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/", s.handleRoot)
	engine.GET("/healthz", s.handleHealth)
	engine.POST("/invoke", s.handleInvoke)
	if s.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.ingestor != nil {
		engine.POST("/v1/ingest", s.handleIngest)
	}
	if s.clearer != nil {
		engine.POST("/v1/clear", s.handleClear)
	}
	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		if s.recorder != nil && path != "/metrics" {
			s.recorder.RecordHTTPRequest(c.Request.Method, path, status, duration)
		}
		s.logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", duration),
		)
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, messageResponse{Message: welcomeMessage})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	answer, err := s.answerer.Run(c.Request.Context(), req.Question)
	if err != nil {
		status, code := classify(err)
		s.abort(c, status, code, err)
		return
	}

	s.logger.Info("question answered",
		zap.String("run_id", answer.RunID),
		zap.String("route", answer.Route.String()),
		zap.String("outcome", string(answer.Outcome)),
	)
	c.JSON(http.StatusOK, invokeResponse{Result: answer.Text})
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.dataDir
	}

	s.logger.Info("ingesting documents", zap.String("dir", dir))
	if err := s.ingestor.IngestDirectory(c.Request.Context(), dir); err != nil {
		s.abort(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "ingestion complete"})
}

func (s *Server) handleClear(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	if !req.Confirm {
		s.abort(c, http.StatusBadRequest, CodeInvalidRequest, errors.New("confirm must be true to clear data"))
		return
	}

	if err := s.clearer.Clear(c.Request.Context()); err != nil {
		s.abort(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	s.logger.Info("rag data removed")
	c.JSON(http.StatusOK, messageResponse{Message: "rag data cleared"})
}

// abort logs the raw error and replies with the fixed message for code.
func (s *Server) abort(c *gin.Context, status int, code string, err error) {
	s.logger.Warn("request failed",
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: messageFor(code)}})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest, CodeInvalidQuestion
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, rag.ErrRoutingUnavailable):
		return http.StatusServiceUnavailable, CodeRoutingUnavailable
	case errors.Is(err, rag.ErrRetrievalFailure):
		return http.StatusBadGateway, CodeRetrievalFailure
	case errors.Is(err, rag.ErrCapabilityFailure):
		return http.StatusBadGateway, CodeCapabilityFailure
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func messageFor(code string) string {
	switch code {
	case CodeInvalidQuestion:
		return "question is required"
	case CodeInvalidRequest:
		return "request body is invalid"
	case CodeRoutingUnavailable:
		return "the question could not be routed, please try again later"
	case CodeRetrievalFailure:
		return "an evidence source is unavailable, please try again later"
	case CodeCapabilityFailure:
		return "the language model is unavailable, please try again later"
	case CodeTimeout:
		return "the request took too long to answer"
	case CodeUnavailable:
		return "the request was cancelled"
	default:
		return "internal error"
	}
}
