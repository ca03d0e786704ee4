package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bdobrica/kokoro/common/version"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Commit         string    `json:"commit"`
	BuildTime      string    `json:"build_time"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSecs     float64   `json:"uptime_seconds"`
	ActiveSessions int       `json:"active_sessions"`
	Store          string    `json:"store"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

// handleStatus reports "degraded" with 503 when the store is unreachable.
func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		Store:      "ok",
	}
	if s.mgr != nil {
		resp.ActiveSessions = s.mgr.Len()
	}
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("status: store ping failed", "err", err)
			resp.Status = "degraded"
			resp.Store = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}
