package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindtrap/maze-server/internal/events"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit,omitempty"`
	BuildTime string                 `json:"build_time,omitempty"`
	Uptime    string                 `json:"uptime"`
	StartedAt string                 `json:"started_at"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	Memory        string `json:"memory"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handlePing is the lightweight status probe the game client polls
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleVersion reports the build the server runs
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"database":      s.checkDatabaseHealth(r.Context()),
		"question_bank": s.checkQuestionBankHealth(r.Context()),
		"events":        s.checkEventsHealth(),
	}
	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overallStatus == HealthStatusHealthy {
				overallStatus = HealthStatusDegraded
			}
		}
	}

	response := HealthCheckResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		Uptime:    s.Uptime().Round(time.Second).String(),
		StartedAt: humanize.Time(s.startTime),
		Checks:    checks,
		System:    s.getSystemInfo(),
		RequestID: requestID,
	}

	// Degraded still answers 200
	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.securityLogger.LogAuditEvent(
		requestID,
		"health_check",
		"system",
		string(overallStatus),
		map[string]interface{}{
			"duration":    time.Since(start),
			"checks":      len(checks),
			"status_code": statusCode,
		},
	)

	s.writeJSON(w, statusCode, response)
}

// handleReadiness reports whether new players can join: the database
// answers and holds enough active questions for a maze.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"
	if db := s.checkDatabaseHealth(r.Context()); db.Status == HealthStatusUnhealthy {
		ready = false
		message = db.Message
	} else if bank := s.checkQuestionBankHealth(r.Context()); bank.Status == HealthStatusUnhealthy {
		ready = false
		message = bank.Message
	}

	response := map[string]interface{}{
		"ready":      ready,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    Version,
		"request_id": requestID,
	}

	statusCode := http.StatusOK
	outcome := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		outcome = "not_ready"
	}
	s.securityLogger.LogAuditEvent(requestID, "readiness_check", "system", outcome, map[string]interface{}{
		"message": message,
	})

	s.writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":      true,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    Version,
		"uptime":     s.Uptime().Round(time.Second).String(),
		"request_id": middleware.GetReqID(r.Context()),
	})
}

// checkDatabaseHealth runs a cheap query against the store
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy, Message: "Database connection healthy"}

	if s.db == nil {
		check.Status = HealthStatusUnhealthy
		check.Message = "Database not initialized"
	} else {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if _, err := s.db.PlayerStats(ctx); err != nil {
			check.Status = HealthStatusUnhealthy
			check.Message = fmt.Sprintf("Database query failed: %v", err)
		}
	}

	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

// checkQuestionBankHealth compares the active questions with what one maze
// needs. Fewer is degraded since questions repeat; none is unhealthy.
func (s *Server) checkQuestionBankHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy}

	if s.db == nil {
		check.Status = HealthStatusUnhealthy
		check.Message = "Database not initialized"
	} else {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		n, err := s.db.CountActiveQuestions(ctx)
		switch {
		case err != nil:
			check.Status = HealthStatusUnhealthy
			check.Message = fmt.Sprintf("Question count failed: %v", err)
		case n == 0:
			check.Status = HealthStatusUnhealthy
			check.Message = "No active questions"
		case n < s.opts.QuestionCount:
			check.Status = HealthStatusDegraded
			check.Message = fmt.Sprintf("%d active questions, %d per maze; questions will repeat", n, s.opts.QuestionCount)
		default:
			check.Message = fmt.Sprintf("%d active questions", n)
		}
	}

	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

// checkEventsHealth reports connected sockets and dropped events
func (s *Server) checkEventsHealth() HealthCheck {
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if s.hub == nil {
		check.Status = HealthStatusDegraded
		check.Message = "Live events disabled"
		return check
	}
	check.Message = fmt.Sprintf("%d admin and %d player sockets, %s events dropped",
		s.hub.Count(events.RoomAdmin), s.hub.Count(events.RoomGame), humanize.Comma(int64(s.hub.Dropped())))
	if s.sessions != nil {
		check.Message += fmt.Sprintf(", %d answer keys in memory", s.sessions.Len())
	}
	return check
}

// getSystemInfo collects system information
func (s *Server) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		Memory:        humanize.Bytes(m.Alloc) + " of " + humanize.Bytes(m.Sys),
		GCCycles:      m.NumGC,
	}
}
