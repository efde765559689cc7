package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tabloop"
	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// ledgerURI is the resource exposing the ledger summary.
const ledgerURI = "tabloop://ledger/summary"

// ErrNoLedger is returned by ledger tools when the server has no ledger.
var ErrNoLedger = errors.New("no ledger configured")

// AskArgs are the arguments of the ask_table tool.
type AskArgs struct {
	Question       string `json:"question"`
	CSV            string `json:"csv"`
	ReferenceSteps string `json:"reference_steps,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// AskResponse is the structured result of the ask_table tool.
type AskResponse struct {
	RunID          string            `json:"run_id" jsonschema_description:"Identifier of the loop run"`
	Answer         string            `json:"answer" jsonschema_description:"The final answer"`
	AnswerKind     domain.AnswerKind `json:"answer_kind" jsonschema_description:"How the answer was produced"`
	Success        bool              `json:"success" jsonschema_description:"Whether the loop produced an answer"`
	IterationsUsed int               `json:"iterations_used" jsonschema_description:"Model rounds consumed"`
	Reason         string            `json:"reason,omitempty" jsonschema_description:"Failure reason, if any"`
	Table          string            `json:"table" jsonschema_description:"The final working table as CSV"`
}

// LedgerService is the subset of the ledger the server exposes.
type LedgerService interface {
	Summary(ctx context.Context) (domain.LedgerSummary, error)
}

// Server exposes a tabloop engine as an MCP server.
type Server struct {
	asker     ports.Asker
	ledger    LedgerService
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLedger enables the ledger_summary tool and resource.
func WithLedger(l LedgerService) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(asker ports.Asker, opts ...Option) *Server {
	s := &Server{
		asker:     asker,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("tabloop-mcp", strings.TrimSpace(tabloop.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	askTool := mcp.NewTool("ask_table",
		mcp.WithDescription("Answer a natural-language question about a CSV table by iterating over code and reasoning steps."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("csv", mcp.Required(), mcp.Description("The table as CSV text with a header row")),
		mcp.WithString("reference_steps", mcp.Description("Comma-separated operator names suggested by a planner (optional)")),
		mcp.WithNumber("max_iterations", mcp.Description("Round budget (optional, defaults to 10)")),
		mcp.WithString("run_id", mcp.Description("Identifier for the run (optional, generated when absent)")),
		mcp.WithOutputSchema[AskResponse](),
	)
	s.mcpServer.AddTool(askTool, mcp.NewStructuredToolHandler(s.handleAsk))

	if s.ledger == nil {
		return
	}
	s.mcpServer.AddTool(mcp.NewTool("ledger_summary",
		mcp.WithDescription("Summarize the outcomes of completed loops."),
		mcp.WithOutputSchema[domain.LedgerSummary](),
	), mcp.NewStructuredToolHandler(s.handleLedgerSummary))
}

func (s *Server) handleAsk(ctx context.Context, _ mcp.CallToolRequest, args AskArgs) (AskResponse, error) {
	t, err := table.FromCSV(strings.NewReader(args.CSV))
	if err != nil {
		return AskResponse{}, fmt.Errorf("invalid csv: %w", err)
	}
	req := domain.Request{
		Question:      args.Question,
		Table:         t,
		MaxIterations: args.MaxIterations,
		RunID:         args.RunID,
	}
	for _, step := range strings.Split(args.ReferenceSteps, ",") {
		if step = strings.TrimSpace(step); step != "" {
			req.ReferenceSteps = append(req.ReferenceSteps, step)
		}
	}

	res, err := s.asker.Run(ctx, req)
	if err != nil {
		s.logger.Warn("MCP ask_table: rejected", "error", err)
		return AskResponse{}, fmt.Errorf("ask failed: %w", err)
	}

	var csv strings.Builder
	if res.Table != nil && res.Table.Err() == nil {
		if err := res.Table.WriteCSV(&csv); err != nil {
			s.logger.Error("MCP ask_table: table encode failed", "error", err)
		}
	}
	return AskResponse{
		RunID:          res.RunID,
		Answer:         res.Answer,
		AnswerKind:     res.AnswerKind,
		Success:        res.Success,
		IterationsUsed: res.IterationsUsed,
		Reason:         res.Reason,
		Table:          csv.String(),
	}, nil
}

func (s *Server) handleLedgerSummary(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (domain.LedgerSummary, error) {
	if s.ledger == nil {
		return domain.LedgerSummary{}, ErrNoLedger
	}
	return s.ledger.Summary(ctx)
}

func (s *Server) registerResources() {
	if s.ledger == nil {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource(ledgerURI, "Ledger Summary",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		summary, err := s.ledger.Summary(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize ledger: %w", err)
		}
		jsonBytes, _ := json.Marshal(summary)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ledgerURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
