// Package status exposes a small HTTP surface for observing a running
// training job: /healthz for liveness and /status for a JSON snapshot of
// the latest training and evaluation metrics.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/kgembed/compounde3d/internal/train"
)

// Snapshot is the JSON payload served by /status.
type Snapshot struct {
	Model        string             `json:"model"`
	MaxSteps     int                `json:"max_steps"`
	Step         int                `json:"step"`
	LearningRate float64            `json:"learning_rate"`
	Loss         float64            `json:"loss"`
	PositiveLoss float64            `json:"positive_sample_loss"`
	NegativeLoss float64            `json:"negative_sample_loss"`
	LastEval     map[string]float64 `json:"last_eval,omitempty"`
	LastEvalName string             `json:"last_eval_split,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Server implements train.Reporter over HTTP.
type Server struct {
	mu   sync.RWMutex
	snap Snapshot
	srv  *http.Server
}

// NewServer creates a status server for the given listen address.
func NewServer(addr, modelName string, maxSteps int) *Server {
	s := &Server{
		snap: Snapshot{Model: modelName, MaxSteps: maxSteps, UpdatedAt: time.Now()},
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server stopped")
		}
	}()
	log.Info().Str("addr", s.srv.Addr).Msg("status server listening")
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("status server shutdown")
	}
}

// ReportTraining implements train.Reporter.
func (s *Server) ReportTraining(step int, lr float64, lg train.StepLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Step = step
	s.snap.LearningRate = lr
	s.snap.Loss = lg.Loss
	s.snap.PositiveLoss = lg.PositiveLoss
	s.snap.NegativeLoss = lg.NegativeLoss
	s.snap.UpdatedAt = time.Now()
}

// ReportEval records the latest evaluation metrics for a split.
func (s *Server) ReportEval(split string, metrics map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastEvalName = split
	s.snap.LastEval = metrics
	s.snap.UpdatedAt = time.Now()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
