// =============================================================================
// HTTP API SERVER - ADMIN/OBSERVABILITY SURFACE FOR THE TRANSACTIONAL CORE
// =============================================================================
//
// The network-facing producer/consumer client is out of scope (spec.md §1);
// this server exposes the things an operator actually needs against a
// running broker: health, Prometheus metrics, topic listing, and the
// transaction admin plane (list/describe/abort), mirroring what
// `kafka-transactions.sh` gives you against a real cluster.
//
// WHY CHI ROUTER:
//
//   Chi is a lightweight, idiomatic Go router that:
//   - Is stdlib net/http compatible
//   - Supports URL parameters (e.g., /transactions/{id})
//   - Has middleware support
//
// ENDPOINTS:
//
//   GET    /healthz                      Liveness check
//   GET    /metrics                      Prometheus exposition
//   GET    /stats                        Broker statistics
//   GET    /topics                       List topics
//   POST   /topics                       Create a topic
//   GET    /transactions                 List transactions (?state=Ongoing)
//   GET    /transactions/{id}            Describe a transaction
//   POST   /transactions/{id}/abort      Force-abort a transaction
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"txncore/internal/broker"
	"txncore/internal/metrics"
)

// Server is the admin HTTP server for a txncore broker.
type Server struct {
	broker     *broker.Broker
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
}

// Config holds API server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new admin API server for b.
func NewServer(b *broker.Broker, config Config) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		broker: b,
		router: r,
		logger: logger,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/topics", func(r chi.Router) {
		r.Get("/", s.listTopics)
		r.Post("/", s.createTopic)
	})

	s.router.Route("/transactions", func(r chi.Router) {
		r.Get("/", s.listTransactions)
		r.Route("/{transactionalID}", func(r chi.Router) {
			r.Get("/", s.describeTransaction)
			r.Post("/abort", s.abortTransaction)
		})
	})
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	s.logger.Info("starting admin HTTP server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping admin HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// HEALTH & STATS
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.broker.Stats()
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h := metrics.Handler()
	if h == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "metrics not initialized")
		return
	}
	h.ServeHTTP(w, r)
}

// =============================================================================
// TOPICS
// =============================================================================

type createTopicRequest struct {
	Name          string `json:"name"`
	NumPartitions int    `json:"num_partitions"`
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"topics": s.broker.ListTopics()})
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.NumPartitions <= 0 {
		req.NumPartitions = 1
	}
	err := s.broker.CreateTopic(broker.TopicConfig{Name: req.Name, NumPartitions: req.NumPartitions})
	if err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "num_partitions": req.NumPartitions})
}

// =============================================================================
// TRANSACTIONS — the admin plane spec.md names: listTransactions,
// describeTransactions, and an operator-triggered abort.
// =============================================================================

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	var filter []broker.TransactionState
	if q := r.URL.Query().Get("state"); q != "" {
		state, ok := parseTransactionState(q)
		if !ok {
			s.errorResponse(w, http.StatusBadRequest, "unknown state: "+q)
			return
		}
		filter = append(filter, state)
	}

	entries := s.broker.Coordinator().ListTransactions(filter...)
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"transactional_id": e.TransactionalID, "state": e.State.String()}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) describeTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transactionalID")
	described := s.broker.Coordinator().DescribeTransactions(id)
	if len(described) == 0 {
		s.errorResponse(w, http.StatusNotFound, "no active transaction for "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, describeTransactionResponse(described[0]))
}

func (s *Server) abortTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transactionalID")
	state := s.broker.Coordinator().GetProducerState(id)
	if state == nil {
		s.errorResponse(w, http.StatusNotFound, "unknown transactional id: "+id)
		return
	}
	if err := s.broker.Coordinator().AbortTransaction(id, state.ProducerIDAndEpoch); err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactional_id": id, "aborted": true})
}

func describeTransactionResponse(txn *broker.TransactionMetadata) map[string]any {
	partitions := make(map[string][]int, len(txn.Partitions))
	for topic, parts := range txn.Partitions {
		list := make([]int, 0, len(parts))
		for p := range parts {
			list = append(list, p)
		}
		partitions[topic] = list
	}
	return map[string]any{
		"transaction_id":   txn.TransactionID,
		"transactional_id": txn.TransactionalID,
		"producer_id":      txn.ProducerID,
		"epoch":            txn.Epoch,
		"state":            txn.State.String(),
		"start_time":       txn.StartTime,
		"partitions":       partitions,
	}
}

func parseTransactionState(s string) (broker.TransactionState, bool) {
	for _, st := range []broker.TransactionState{
		broker.TransactionStateEmpty,
		broker.TransactionStateOngoing,
		broker.TransactionStatePrepareCommit,
		broker.TransactionStatePrepareAbort,
		broker.TransactionStateCompleteCommit,
		broker.TransactionStateCompleteAbort,
		broker.TransactionStateDead,
	} {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message, "status": status})
}
