package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/companion"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

const maxAnalyticsDays = 365

type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type createSessionResponse struct {
	SessionID           string              `json:"session_id"`
	Greeting            string              `json:"greeting"`
	Suggestions         []habits.Suggestion `json:"suggestions"`
	Returning           bool                `json:"returning"`
	PersistenceDegraded bool                `json:"persistence_degraded"`
}

type messageRequest struct {
	Content string `json:"content" binding:"required"`
}

type messageResponse struct {
	Reply               string                `json:"reply"`
	Sentiment           *mood.SentimentRecord `json:"sentiment,omitempty"`
	Suggestions         []habits.Suggestion   `json:"suggestions"`
	Fallback            bool                  `json:"fallback"`
	RateLimited         bool                  `json:"rate_limited"`
	PersistenceDegraded bool                  `json:"persistence_degraded"`
}

type analyticsResponse struct {
	UserID    string                    `json:"user_id"`
	Days      int                       `json:"days"`
	Analytics []analytics.DailyAnalytic `json:"analytics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newMessageResponse(res companion.Result) messageResponse {
	sg := res.Reply.Suggestions
	if sg == nil {
		sg = []habits.Suggestion{}
	}
	return messageResponse{
		Reply:               res.Reply.Text,
		Sentiment:           res.Reply.Sentiment,
		Suggestions:         sg,
		Fallback:            res.Reply.Fallback,
		RateLimited:         res.RateLimited,
		PersistenceDegraded: res.Reply.PersistenceErr != nil,
	}
}

func sessionKey(c *gin.Context) string {
	return companion.Key(companion.ChannelAPI, c.Param("id"))
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		s.badRequest(c, "user_id is required")
		return
	}
	g, err := s.mgr.Open(c.Request.Context(), req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID:           g.SessionID,
		Greeting:            g.Text,
		Suggestions:         g.Suggestions,
		Returning:           g.Returning,
		PersistenceDegraded: g.PersistenceErr != nil,
	})
}

func (s *Server) getSession(c *gin.Context) {
	st, err := s.mgr.Snapshot(sessionKey(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) endSession(c *gin.Context) {
	ended, err := s.mgr.End(c.Request.Context(), sessionKey(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ended {
		s.fail(c, companion.ErrUnknownSession)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true})
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		s.badRequest(c, "content is required")
		return
	}
	res, err := s.mgr.Message(c.Request.Context(), sessionKey(c), req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newMessageResponse(res))
}

// userReport answers 200 with the fallback report when storage fails; the
// fallback is itself a valid report.
func (s *Server) userReport(c *gin.Context) {
	r, err := s.mgr.Weekly(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) userInsights(c *gin.Context) {
	p, err := s.mgr.Insights(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) userAnalytics(c *gin.Context) {
	days := analytics.WeekDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAnalyticsDays {
			s.badRequest(c, "days must be between 1 and 365")
			return
		}
		days = n
	}
	h, err := s.mgr.History(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	if h == nil {
		h = []analytics.DailyAnalytic{}
	}
	c.JSON(http.StatusOK, analyticsResponse{UserID: c.Param("id"), Days: days, Analytics: h})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// fail maps err to a status code and writes it.
func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("api: request failed", "path", c.FullPath(), "err", err)
	}
	_ = c.Error(err)
	msg := http.StatusText(code)
	if code < http.StatusInternalServerError {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, companion.ErrUnknownSession), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyUserID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
