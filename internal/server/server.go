// Package server exposes UMDA minimization as an HTTP job service: jobs are
// started against a named benchmark objective, polled for status and
// cancelled, over both a REST surface and a JSON-RPC 2.0 endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stochago/umda/internal/config"
	"github.com/stochago/umda/internal/optimization"
	"github.com/stochago/umda/internal/optimization/objectives"
	"github.com/stochago/umda/internal/optimization/umda"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JobRequest describes a minimization job. Zero-valued knobs fall back to the
// server's configured defaults.
type JobRequest struct {
	Objective  string  `json:"objective"`
	NVariables int     `json:"n_variables"`
	MaxIter    int     `json:"max_iter"`
	SizeGen    int     `json:"size_gen"`
	Alpha      float64 `json:"alpha"`
	Seed       uint64  `json:"seed"`
	Workers    int     `json:"workers"`
}

type jobState struct {
	ID          string
	Request     JobRequest
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Optimizer   *umda.UMDA
	Result      *optimization.Result
	Err         string
	Cancel      context.CancelFunc
}

// Server manages optimization jobs. Job state is guarded by jobsMu and safe
// for concurrent requests; each job runs a dedicated UMDA instance.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	jobs   map[string]*jobState
	jobsMu sync.RWMutex
}

// New creates a server instance.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[string]*jobState),
	}
}

// RegisterRoutes mounts the REST and JSON-RPC surfaces on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/minimize", s.handleMinimize)
		r.Get("/jobs/{id}", s.handleStatus)
		r.Delete("/jobs/{id}", s.handleCancel)
	})
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every running job.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, job := range s.jobs {
		if job.Cancel != nil {
			job.Cancel()
		}
	}
	return nil
}

// startJob registers and launches a job, returning its ID. Only the ID leaks
// out: once runJob is spawned, job fields may only be read under jobsMu.
func (s *Server) startJob(req JobRequest) (string, error) {
	s.applyDefaults(&req)

	objective, err := objectives.Lookup(req.Objective)
	if err != nil {
		return "", err
	}

	opt, err := umda.New(umda.Config{
		MaxIter:    req.MaxIter,
		SizeGen:    req.SizeGen,
		NVariables: req.NVariables,
		Alpha:      req.Alpha,
		Workers:    req.Workers,
		Seed:       req.Seed,
		Logger:     s.logger,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &jobState{
		ID:          fmt.Sprintf("job_%d", now.UnixNano()),
		Request:     req,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Optimizer:   opt,
		Cancel:      cancel,
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	jobsStarted.Inc()
	go s.runJob(ctx, job, objective)

	return job.ID, nil
}

func (s *Server) applyDefaults(req *JobRequest) {
	opt := s.cfg.Optimization
	if req.MaxIter == 0 {
		req.MaxIter = opt.MaxIter
	}
	if req.SizeGen == 0 {
		req.SizeGen = opt.SizeGen
	}
	if req.NVariables == 0 {
		req.NVariables = opt.NVariables
	}
	if req.Alpha == 0 {
		req.Alpha = opt.Alpha
	}
	if req.Workers == 0 {
		req.Workers = opt.Workers
	}
	if req.Seed == 0 {
		req.Seed = opt.Seed
	}
}

func (s *Server) runJob(ctx context.Context, job *jobState, objective optimization.ObjectiveFunc) {
	s.setStatus(job, StatusRunning)

	result, err := job.Optimizer.Minimize(ctx, objective, nil, nil)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	jobDuration.Observe(now.Sub(job.StartTime).Seconds())

	switch {
	// Cancellation wins even when Minimize finished cleanly: a cancel that
	// lands after the final iteration must not flip the job back to
	// completed.
	case ctx.Err() != nil:
		job.Status = StatusCancelled
		jobsFinished.WithLabelValues(StatusCancelled).Inc()
		s.logger.Info("job cancelled", zap.String("job_id", job.ID))
	case err == nil:
		job.Status = StatusCompleted
		job.Result = result
		jobsFinished.WithLabelValues(StatusCompleted).Inc()
		objectiveEvaluations.Add(float64(result.Evaluations))
		s.logger.Info("job completed",
			zap.String("job_id", job.ID),
			zap.Float64("best_value", result.BestSolution.Value),
			zap.Int("evaluations", result.Evaluations),
		)
	default:
		job.Status = StatusFailed
		job.Err = err.Error()
		jobsFinished.WithLabelValues(StatusFailed).Inc()
		s.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Server) setStatus(job *jobState, status string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job.Status = status
	job.LastUpdated = time.Now()
}

func (s *Server) jobResponse(job *jobState) map[string]interface{} {
	resp := map[string]interface{}{
		"job_id":      job.ID,
		"status":      job.Status,
		"objective":   job.Request.Objective,
		"start_time":  job.StartTime.Format(time.RFC3339),
		"last_update": job.LastUpdated.Format(time.RFC3339),
	}
	if job.EndTime != nil {
		resp["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.Err != "" {
		resp["error"] = job.Err
	}
	if job.Result != nil {
		resp["result"] = map[string]interface{}{
			"best_point":  job.Result.BestSolution.Parameters,
			"best_value":  job.Result.BestSolution.Value,
			"evaluations": job.Result.Evaluations,
		}
		resp["history"] = job.Optimizer.History()
	}
	return resp
}

func (s *Server) cancelJob(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return fmt.Errorf("cannot cancel job with status %s", job.Status)
	}
	if job.Cancel != nil {
		job.Cancel()
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	return nil
}

func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	jobID, err := s.startJob(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": StatusPending,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	var resp map[string]interface{}
	if ok {
		resp = s.jobResponse(job)
	}
	s.jobsMu.RUnlock()

	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelJob(id); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// handleJSONRPC serves the JSON-RPC 2.0 methods umda.minimize, umda.status
// and umda.cancel.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondRPCError(w, -32700, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondRPCError(w, -32600, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "umda.minimize":
		var req JobRequest
		if err = json.Unmarshal(request.Params, &req); err == nil {
			var jobID string
			if jobID, err = s.startJob(req); err == nil {
				result = map[string]interface{}{"job_id": jobID, "status": StatusPending}
			}
		}
	case "umda.status":
		var params struct {
			JobID string `json:"job_id"`
		}
		if err = json.Unmarshal(request.Params, &params); err == nil {
			s.jobsMu.RLock()
			job, ok := s.jobs[params.JobID]
			if ok {
				result = s.jobResponse(job)
			} else {
				err = fmt.Errorf("job not found")
			}
			s.jobsMu.RUnlock()
		}
	case "umda.cancel":
		var params struct {
			JobID string `json:"job_id"`
		}
		if err = json.Unmarshal(request.Params, &params); err == nil {
			if err = s.cancelJob(params.JobID); err == nil {
				result = map[string]string{"status": "cancellation requested"}
			}
		}
	default:
		s.respondRPCError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondRPCError(w, -32000, err.Error(), request.ID)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondRPCError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("rpc error", zap.Int("code", code), zap.String("message", message))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
