package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bdobrica/kokoro/internal/kokoro/companion"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
)

const (
	wsWriteWait   = 10 * time.Second
	wsMaxFrame    = 16 << 10
	frameMessage  = "message"
	frameEnd      = "end"
	frameGreeting = "greeting"
	frameReply    = "reply"
	frameEnded    = "ended"
	frameError    = "error"
)

type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type greetingFrame struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"session_id"`
	Greeting    string              `json:"greeting"`
	Suggestions []habits.Suggestion `json:"suggestions"`
	Returning   bool                `json:"returning"`
}

type replyFrame struct {
	Type string `json:"type"`
	messageResponse
}

type statusFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// chatSocket runs one conversation over a websocket. The session ends when
// the client sends an end frame or disconnects.
func (s *Server) chatSocket(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		s.badRequest(c, "user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrame)

	// The request context ends with the handler; the session must outlive
	// a cancelled read to be closed cleanly.
	ctx := context.WithoutCancel(c.Request.Context())
	key := companion.Key(companion.ChannelWS, uuid.NewString())
	log := s.logger.With("key", key, "user_id", userID)

	g, err := s.mgr.Start(ctx, key, userID)
	if err != nil {
		log.Error("api: websocket session start failed", "err", err)
		s.writeFrame(conn, statusFrame{Type: frameError, Error: http.StatusText(statusFor(err))})
		return
	}
	defer func() {
		if _, err := s.mgr.End(ctx, key); err != nil {
			log.Warn("api: failed to end websocket session", "err", err)
		}
	}()

	if !s.writeFrame(conn, greetingFrame{
		Type:        frameGreeting,
		SessionID:   g.SessionID,
		Greeting:    g.Text,
		Suggestions: g.Suggestions,
		Returning:   g.Returning,
	}) {
		return
	}

	for {
		var in clientFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("api: websocket read ended", "err", err)
			}
			return
		}

		switch in.Type {
		case frameMessage:
			if strings.TrimSpace(in.Content) == "" {
				s.writeFrame(conn, statusFrame{Type: frameError, Error: "content is required"})
				continue
			}
			res, err := s.mgr.Send(ctx, key, userID, in.Content)
			if err != nil {
				log.Error("api: websocket turn failed", "err", err)
				if !s.writeFrame(conn, statusFrame{Type: frameError, Error: http.StatusText(statusFor(err))}) {
					return
				}
				continue
			}
			if !s.writeFrame(conn, replyFrame{Type: frameReply, messageResponse: newMessageResponse(res)}) {
				return
			}

		case frameEnd:
			if _, err := s.mgr.End(ctx, key); err != nil {
				log.Warn("api: websocket end failed", "err", err)
				s.writeFrame(conn, statusFrame{Type: frameError, Error: http.StatusText(statusFor(err))})
				continue
			}
			s.writeFrame(conn, statusFrame{Type: frameEnded})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(wsWriteWait))
			return

		default:
			if !s.writeFrame(conn, statusFrame{Type: frameError, Error: "unknown frame type"}) {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("api: websocket write failed", "err", err)
		}
		return false
	}
	return true
}
