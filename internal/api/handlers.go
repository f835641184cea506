package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quarry-network/quarry/internal/domain"
)

// ─── Job Operations ─────────────────────────────────────────────────────────

type postJobRequest struct {
	Poster        string          `json:"poster"`
	Description   string          `json:"description"`
	Category      domain.Category `json:"category"`
	DeadlineHours int             `json:"deadline_hours"`
	Payment       int64           `json:"payment"`
}

func (s *Server) handlePostJob(w http.ResponseWriter, r *http.Request) {
	var req postJobRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.ledger.Post(req.Poster, req.Description, req.Category, req.DeadlineHours, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	status := domain.JobStatus(r.URL.Query().Get("status"))

	var (
		jobs []domain.Job
		err  error
	)
	if status == "open" || status == domain.JobOpen {
		jobs, err = s.ledger.OpenJobs(limit)
	} else {
		jobs, err = s.ledger.JobsByStatus(status, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := s.ledger.Job(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Worker string `json:"worker"`
		Stake  int64  `json:"stake"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.Claim(id, req.Worker, req.Stake); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Worker string `json:"worker"`
		Result string `json:"result"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.Submit(id, req.Worker, req.Result); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	payout, err := s.ledger.Approve(id, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (s *Server) handleAutoApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	payout, err := s.ledger.AutoApprove(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.Dispute(id, req.Caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.Cancel(id, req.Caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req) // caller is optional here
	if err := s.ledger.Expire(id, req.Caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "expired"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Arbiter    string `json:"arbiter"`
		WorkerWins bool   `json:"worker_wins"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.ResolveDispute(id, req.Arbiter, req.WorkerWins); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ─── Agents ─────────────────────────────────────────────────────────────────

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Agent(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	balance, err := s.ledger.Balance(address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "balance": balance})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	address := chi.URLParam(r, "address")
	if err := s.ledger.Deposit(address, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.ledger.Balance(address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "balance": balance})
}

// ─── Worker Control ─────────────────────────────────────────────────────────

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleWorkerStart(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no worker configured"})
		return
	}
	// Outlives the request: the scan loop runs until Stop.
	s.scheduler.Start(context.Background())
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleWorkerStop(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no worker configured"})
		return
	}
	s.scheduler.Stop()
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

// ─── Parsing Helpers ────────────────────────────────────────────────────────

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, &domain.ValidationError{Reason: "job id must be an integer"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
