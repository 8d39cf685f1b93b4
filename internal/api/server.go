// Package api exposes a read-only HTTP surface over the snapshot plus a
// trigger endpoint that runs a monitoring cycle in the background.
package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/monitor"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

// Server serves the monitoring API.
type Server struct {
	Echo   *echo.Echo
	store  store.SnapshotStore
	scorer *score.Scorer
	runner *monitor.Runner

	// jobMu guards the single background cycle slot: at most one
	// API-triggered cycle runs at a time.
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID         string               `json:"id"`
	Status     string               `json:"status"` // running, completed, failed
	StartedAt  time.Time            `json:"started_at"`
	EndedAt    time.Time            `json:"ended_at,omitempty"`
	Report     *monitor.CycleReport `json:"report,omitempty"`
	Error      string               `json:"error,omitempty"`
	cancelFunc context.CancelFunc
}

// NewServer wires routes and middleware.
func NewServer(st store.SnapshotStore, scorer *score.Scorer, runner *monitor.Runner) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		Echo:   e,
		store:  st,
		scorer: scorer,
		runner: runner,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/healthz", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.GET("/alerts", s.handleListAlerts)
	api.POST("/cycles/trigger", s.handleTriggerCycle)
	api.GET("/jobs/:id", s.handleJobStatus)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// scoredOpportunity is the list/detail response shape: the stored record
// plus its scores at request time.
type scoredOpportunity struct {
	models.Opportunity
	Score models.ScoreResult `json:"score"`
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	snapshot, err := s.store.Load(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	statusFilter := strings.ToLower(c.QueryParam("status"))
	sourceFilter := strings.ToLower(c.QueryParam("source"))
	minPriority := 0.0
	if raw := c.QueryParam("min_priority"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			minPriority = parsed
		}
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	now := time.Now().UTC()
	out := make([]scoredOpportunity, 0, len(snapshot))
	for _, opp := range snapshot {
		if statusFilter != "" && string(opp.Status) != statusFilter {
			continue
		}
		if sourceFilter != "" && strings.ToLower(opp.SourceSystem) != sourceFilter {
			continue
		}
		res := s.scorer.Score(opp, now)
		if res.Priority < minPriority {
			continue
		}
		out = append(out, scoredOpportunity{Opportunity: opp, Score: res})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score.Priority != out[j].Score.Priority {
			return out[i].Score.Priority > out[j].Score.Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}

	return c.JSON(http.StatusOK, map[string]any{
		"opportunities": out,
		"total":         len(out),
	})
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid opportunity id"})
	}

	snapshot, err := s.store.Load(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	opp, ok := snapshot[id]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "opportunity not found"})
	}
	return c.JSON(http.StatusOK, scoredOpportunity{
		Opportunity: opp,
		Score:       s.scorer.Score(opp, time.Now().UTC()),
	})
}

func (s *Server) handleListAlerts(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	alerts, err := s.store.ListAlerts(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return c.JSON(http.StatusOK, map[string]any{"alerts": alerts, "total": len(alerts)})
}

// handleTriggerCycle starts one monitoring cycle in the background and
// returns 202 with a job ID to poll. A second trigger while a cycle runs
// gets 409 with the running job's ID.
func (s *Server) handleTriggerCycle(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "a cycle is already running",
			"job_id": job.ID,
		})
	}

	// Detach from the HTTP request lifecycle; the cycle outlives the
	// response. A generous timeout bounds runaway collectors.
	jobCtx, cancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 30*time.Minute,
	)

	job := &backgroundJob{
		ID:         uuid.New().String()[:8],
		Status:     "running",
		StartedAt:  time.Now().UTC(),
		cancelFunc: cancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer cancel()
		report, err := s.runner.Cycle(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now().UTC()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			zap.L().Error("triggered cycle failed",
				zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		job.Status = "completed"
		job.Report = report
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "cycle started",
		"job_id":  job.ID,
		"poll":    "/api/v1/jobs/" + job.ID,
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()

	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	return c.JSON(http.StatusOK, job)
}
