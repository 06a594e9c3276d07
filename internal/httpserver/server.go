package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"papas-bot/internal/metrics"
	"papas-bot/internal/repo"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultConversationLimit = 200

// Handlers groups optional HTTP handlers to mount.
type Handlers struct {
	Webhook http.Handler
}

// Reports is the read-only view over stored orders and conversations.
type Reports interface {
	Capabilities() repo.SchemaCapabilities
	Orders(ctx context.Context) ([]repo.Order, error)
	Proofs(ctx context.Context) ([]repo.Order, error)
	Conversations(ctx context.Context, limit int) ([]repo.ConversationRecord, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Reports  Reports
	Database Pinger
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handlers   Handlers
	deps       Dependencies
	basePath   string
	now        func() time.Time
}

// New creates a new HTTP server listening on addr with health, metrics,
// webhook and reporting endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		handlers: handlers,
		deps:     deps,
		basePath: normaliseBasePath(basePath),
		now:      time.Now,
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	if s.handlers.Webhook != nil {
		r.Handle("/webhook", s.handlers.Webhook)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/conversaciones", s.handleConversations)
		r.Get("/pedidos", s.handleOrders)
		r.Get("/comprobantes", s.handleProofs)
		r.Get("/estado", s.handleStatus)
	})

	if s.basePath == "" {
		return r
	}
	root := chi.NewRouter()
	root.Mount(s.basePath, r)
	return root
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

type conversationView struct {
	ID          string  `json:"id"`
	Phone       string  `json:"numero_telefono"`
	Timestamp   string  `json:"timestamp"`
	Inbound     string  `json:"mensaje_usuario"`
	Outbound    string  `json:"mensaje_bot"`
	Step        string  `json:"step"`
	SessionData *string `json:"session_data"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		http.Error(w, "reports unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.deps.Reports.Conversations(r.Context(), limit)
	if err != nil {
		s.fail(w, "conversations", err)
		return
	}
	out := make([]conversationView, 0, len(records))
	for _, rec := range records {
		out = append(out, conversationView{
			ID:          rec.ID,
			Phone:       rec.CustomerID,
			Timestamp:   formatTime(rec.CreatedAt),
			Inbound:     rec.Inbound,
			Outbound:    rec.Outbound,
			Step:        rec.Step,
			SessionData: rec.SessionData,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		http.Error(w, "reports unavailable", http.StatusServiceUnavailable)
		return
	}
	orders, err := s.deps.Reports.Orders(r.Context())
	if err != nil {
		s.fail(w, "orders", err)
		return
	}
	caps := s.deps.Reports.Capabilities()
	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		row := map[string]any{
			"id":              o.ID,
			"numero_telefono": o.CustomerID,
			"nombre_cliente":  o.CustomerName,
			"tamaño":          o.Size,
			"agregado":        o.Addon,
			"bebida":          o.Drink,
			"total":           o.Total,
			"timestamp":       formatTime(o.CreatedAt),
			"estado":          o.Status,
		}
		// Optional columns appear only when the schema has them.
		if caps.ProofReceived {
			row["comprobante_recibido"] = o.ProofReceived
		}
		if caps.ProofURL {
			row["comprobante_url"] = o.ProofURL
		}
		out = append(out, row)
	}
	writeJSON(w, out)
}

type proofView struct {
	ID        string  `json:"id"`
	Phone     string  `json:"numero_telefono"`
	Name      string  `json:"nombre_cliente"`
	Total     int64   `json:"total"`
	ProofURL  *string `json:"comprobante_url"`
	Timestamp string  `json:"timestamp"`
	Status    string  `json:"estado"`
}

func (s *Server) handleProofs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		http.Error(w, "reports unavailable", http.StatusServiceUnavailable)
		return
	}
	orders, err := s.deps.Reports.Proofs(r.Context())
	if err != nil {
		s.fail(w, "proofs", err)
		return
	}
	out := make([]proofView, 0, len(orders))
	for _, o := range orders {
		out = append(out, proofView{
			ID:        o.ID,
			Phone:     o.CustomerID,
			Name:      o.CustomerName,
			Total:     o.Total,
			ProofURL:  o.ProofURL,
			Timestamp: formatTime(o.CreatedAt),
			Status:    o.Status,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	database := "conectada"
	if s.deps.Database == nil {
		database = "desconocida"
	} else if err := s.deps.Database.Ping(r.Context()); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		database = "desconectada"
	}

	var caps repo.SchemaCapabilities
	if s.deps.Reports != nil {
		caps = s.deps.Reports.Capabilities()
	}
	writeJSON(w, map[string]any{
		"estado":               "activo",
		"base_datos":           database,
		"columnas_comprobante": caps.Full(),
		"capacidades":          caps,
		"timestamp":            formatTime(s.now()),
	})
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.logger.Error("report query failed", "report", what, "error", err)
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("http").Inc()
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
