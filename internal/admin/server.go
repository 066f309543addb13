// Package admin exposes the distributor's operational HTTP surface:
// health, worker status and on-demand distribution recomputation.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/0xsend/sendapp-sub007/internal/distributor"
	"github.com/0xsend/sendapp-sub007/internal/rewards"
)

// Health reports datastore connectivity.
type Health interface {
	Health(ctx context.Context) error
}

// WorkerControl is the worker surface the admin server exposes.
type WorkerControl interface {
	IsRunning() bool
	State() distributor.State
	LastBlockNumber() uint64
	LastBlockNumberAt() time.Time
	LastCalculated() (int64, time.Time)
	CalculateDistribution(ctx context.Context, id int64) (*rewards.Result, error)
}

// Server is the admin HTTP server.
type Server struct {
	worker WorkerControl
	db     Health
	logger *slog.Logger
}

// NewServer creates an admin server.
func NewServer(worker WorkerControl, db Health, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{worker: worker, db: db, logger: logger}
}

// Router returns the admin route handler.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /distributions/{id}/calculate", s.handleCalculate)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Health(r.Context()); err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	if !s.worker.IsRunning() {
		s.errorResponse(w, http.StatusServiceUnavailable, "worker not running")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State              string    `json:"state"`
	Running            bool      `json:"running"`
	LastBlockNumber    uint64    `json:"last_block_number"`
	LastBlockNumberAt  time.Time `json:"last_block_number_at"`
	LastDistributionID int64     `json:"last_distribution_id,omitempty"`
	LastCalculatedAt   time.Time `json:"last_calculated_at,omitzero"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, at := s.worker.LastCalculated()
	s.jsonResponse(w, http.StatusOK, statusResponse{
		State:              string(s.worker.State()),
		Running:            s.worker.IsRunning(),
		LastBlockNumber:    s.worker.LastBlockNumber(),
		LastBlockNumberAt:  s.worker.LastBlockNumberAt(),
		LastDistributionID: id,
		LastCalculatedAt:   at,
	})
}

type calculateResponse struct {
	DistributionID   int64           `json:"distribution_id"`
	ShareCount       int             `json:"share_count"`
	TotalAmount      string          `json:"total_amount"`
	TotalFixedAmount string          `json:"total_fixed_amount"`
	ZeroWeight       bool            `json:"zero_weight,omitempty"`
	Shares           []shareResponse `json:"shares"`
}

type shareResponse struct {
	UserID           string `json:"user_id"`
	Address          string `json:"address"`
	Amount           string `json:"amount"`
	HodlerPoolAmount string `json:"hodler_pool_amount"`
	BonusPoolAmount  string `json:"bonus_pool_amount"`
	FixedPoolAmount  string `json:"fixed_pool_amount"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid distribution id")
		return
	}

	result, err := s.worker.CalculateDistribution(r.Context(), id)
	if err != nil {
		s.logger.Error("on-demand calculation failed", "distribution_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		s.errorResponse(w, http.StatusConflict, "distribution has no verifications")
		return
	}

	shares := make([]shareResponse, 0, len(result.Shares))
	for _, sh := range result.Shares {
		shares = append(shares, shareResponse{
			UserID:           sh.UserID.String(),
			Address:          sh.Address,
			Amount:           sh.Amount.String(),
			HodlerPoolAmount: sh.HodlerPoolAmount.String(),
			BonusPoolAmount:  sh.BonusPoolAmount.String(),
			FixedPoolAmount:  sh.FixedPoolAmount.String(),
		})
	}

	s.jsonResponse(w, http.StatusOK, calculateResponse{
		DistributionID:   id,
		ShareCount:       len(result.Shares),
		TotalAmount:      result.TotalAmount.String(),
		TotalFixedAmount: result.TotalFixedPoolAmount.String(),
		ZeroWeight:       result.ZeroWeight,
		Shares:           shares,
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
