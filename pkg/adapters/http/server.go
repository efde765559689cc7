package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/internal/sanitize"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerService is the subset of the ledger the API exposes.
type LedgerService interface {
	Summary(ctx context.Context) (domain.LedgerSummary, error)
	Clear(ctx context.Context) error
}

// Server serves the tabloop HTTP API.
type Server struct {
	asker    ports.Asker
	ledger   LedgerService
	streams  *StreamManager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLedger exposes ledger summary and clear endpoints.
func WithLedger(l LedgerService) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// WithStreams sets the stream manager backing /v1/events. The same manager
// should be registered as an engine sink.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithGatherer mounts a Prometheus scrape endpoint at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for asker.
func NewHandler(asker ports.Asker, opts ...Option) (http.Handler, error) {
	s := &Server{
		asker:  asker,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}

	_, router, err := loadSpec(context.Background())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(Spec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.validateRequests(router))
		r.Get("/health", s.GetHealth)
		r.Post("/v1/ask", s.Ask)
		r.Get("/v1/ledger/summary", s.GetLedgerSummary)
		r.Delete("/v1/ledger", s.ClearLedger)
		r.Get("/v1/events", s.SubscribeEvents)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>tabloop API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// askRequest is the wire form of domain.Request. Catalog and meta arrive
// loosely typed and are decoded the same way loader output is.
type askRequest struct {
	Question       string            `json:"question"`
	Table          *table.Table      `json:"table,omitempty"`
	CSV            string            `json:"csv,omitempty"`
	ReferenceSteps []string          `json:"reference_steps,omitempty"`
	Catalog        map[string]any    `json:"catalog,omitempty"`
	Meta           map[string]any    `json:"meta,omitempty"`
	Schema         domain.SchemaHint `json:"schema,omitempty"`
	MaxIterations  int               `json:"max_iterations,omitempty"`
	RunID          string            `json:"run_id,omitempty"`
}

func (a askRequest) toDomain() (domain.Request, error) {
	req := domain.Request{
		Question:       a.Question,
		Table:          a.Table,
		ReferenceSteps: a.ReferenceSteps,
		Schema:         a.Schema,
		MaxIterations:  a.MaxIterations,
		RunID:          a.RunID,
	}
	if req.Table == nil && a.CSV != "" {
		t, err := table.FromCSV(strings.NewReader(a.CSV))
		if err != nil {
			return req, fmt.Errorf("invalid csv: %w", err)
		}
		req.Table = t
	}
	if a.Catalog != nil {
		catalog, err := domain.DecodeCatalog(a.Catalog)
		if err != nil {
			return req, err
		}
		req.Catalog = catalog
	}
	meta, err := domain.DecodeTableMeta(a.Meta)
	if err != nil {
		return req, err
	}
	req.Meta = meta
	return req, nil
}

// Ask handles the POST /v1/ask request.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("Ask: Invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.asker.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if isClientError(err) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("Ask failed", "error", err, "status", status)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func isClientError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyQuestion,
		domain.ErrNilTable,
		domain.ErrInvalidBudget,
		sanitize.ErrTooLarge,
		sanitize.ErrInvalidUTF8,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GetLedgerSummary handles the GET /v1/ledger/summary request.
func (s *Server) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrLedgerUnavailable)
		return
	}
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ClearLedger handles the DELETE /v1/ledger request.
func (s *Server) ClearLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrLedgerUnavailable)
		return
	}
	if err := s.ledger.Clear(r.Context()); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("Ledger request failed", "error", err)
	writeError(w, status, err)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
