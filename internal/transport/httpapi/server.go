// Package httpapi exposes the pipeline over HTTP with chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/metrics"
	"github.com/haytools/needle/internal/usecase/finder"
	"github.com/haytools/needle/internal/usecase/health"
)

// DocumentStore is the document contract the API consumes.
type DocumentStore interface {
	WriteDocuments(ctx context.Context, docs []domain.Document, opts ...docstore.WriteOption) error
	GetByID(ctx context.Context, id string) (domain.Document, error)
	Count(ctx context.Context) int
}

// Retriever pulls passages for the search endpoint.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error)
}

// EmbeddingUpdater drives the corpus embedding pass.
type EmbeddingUpdater interface {
	UpdateEmbeddings(ctx context.Context, opts ...docstore.EmbedOption) (docstore.EmbedReport, error)
}

// AnswerFinder runs the full question answering pipeline.
type AnswerFinder interface {
	GetAnswers(ctx context.Context, question string, opts finder.Options) ([]domain.Answer, error)
}

// HealthService aggregates component health.
type HealthService interface {
	Check(ctx context.Context) health.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	store         DocumentStore
	retriever     Retriever
	updater       EmbeddingUpdater
	finder        AnswerFinder
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	store DocumentStore,
	retriever Retriever,
	updater EmbeddingUpdater,
	answerFinder AnswerFinder,
	healthSvc HealthService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		retriever: retriever,
		updater:   updater,
		finder:    answerFinder,
		health:    healthSvc,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, "document_already_exists"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrEncodingQuotaExceeded, http.StatusPaymentRequired, "encoding_quota_exceeded"),
		sentinelHandler(domain.ErrEncodingFailure, http.StatusBadGateway, "encoding_provider_error"),
		sentinelHandler(domain.ErrReaderFailure, http.StatusBadGateway, "reader_provider_error"),
	}
	return s
}

// Router assembles the chi router with middleware and routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleWriteDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/index/embeddings", s.handleUpdateEmbeddings)
		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
	})
	return r
}

// --- error mapping ---

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error, msg string) {
	for _, handle := range s.errorHandlers {
		if handle(w, err, msg) {
			return
		}
	}
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
