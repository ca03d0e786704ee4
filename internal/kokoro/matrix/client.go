// Package matrix connects the companion to Matrix rooms.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/kokoro/common/retry"
	"github.com/bdobrica/kokoro/internal/kokoro/commands"
	"github.com/bdobrica/kokoro/internal/kokoro/companion"
)

const (
	unknownCommandText = "I don't know that command. Try /companion help."
	internalErrorText  = "Something went wrong on my side. Please try again in a moment."

	typingTimeout = 30 * time.Second
	queueDepth    = 16
	workerIdle    = 5 * time.Minute
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AllowedRooms restricts handling to these room IDs. Empty means every
	// joined room.
	AllowedRooms []string
	// DB persists the sync token. When nil an in-memory store is used and
	// history replays on restart.
	DB *sql.DB
}

// Enabled reports whether all three credentials are set.
func (c Config) Enabled() bool {
	return c.Homeserver != "" && c.UserID != "" && c.AccessToken != ""
}

// Responder answers a message from a user on a channel key.
type Responder interface {
	Handle(ctx context.Context, req commands.Request, text string) (*commands.Response, error)
}

// Client wraps the Matrix client
type Client struct {
	client    *mautrix.Client
	config    Config
	responder Responder
	logger    *slog.Logger

	send   func(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error
	join   func(ctx context.Context, roomID id.RoomID) error
	typing func(ctx context.Context, roomID id.RoomID, typing bool)

	mu     sync.Mutex
	queues map[string]chan *event.Event
	// idle is how long a worker waits for its next message before exiting.
	idle   time.Duration
	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// New creates a Matrix client answering through responder.
func New(config Config, responder Responder, logger *slog.Logger) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		client:    client,
		config:    config,
		responder: responder,
		logger:    logger,
		queues:    make(map[string]chan *event.Event),
		idle:      workerIdle,
		stopCh:    make(chan struct{}),
	}
	c.send = func(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
		_, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, content)
		return err
	}
	c.join = func(ctx context.Context, roomID id.RoomID) error {
		_, err := c.client.JoinRoomByID(ctx, roomID)
		return err
	}
	c.typing = func(ctx context.Context, roomID id.RoomID, typing bool) {
		if _, err := c.client.UserTyping(ctx, roomID, typing, typingTimeout); err != nil {
			c.logger.Debug("matrix: typing indicator failed", "room", roomID, "err", err)
		}
	}

	if config.DB != nil {
		client.Store = NewSyncStore(config.DB)
		logger.Info("matrix: using persistent sync store")
	} else {
		logger.Warn("matrix: no sync database, history will replay on restart")
	}
	return c, nil
}

// Start registers event handlers and syncs in the background until Stop is
// called or ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer %T", c.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.AllowedRooms {
		join := retry.Policy{Attempts: 3, Base: time.Second, Name: "matrix join"}
		err := retry.Do(ctx, join, func(ctx context.Context) error { return c.joinRoom(ctx, id.RoomID(roomID)) })
		if err != nil {
			return fmt.Errorf("matrix: join %s: %w", roomID, err)
		}
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			err := c.client.SyncWithContext(ctx)
			if err == nil {
				return
			}
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logger.Error("matrix: sync stopped, reconnecting", "err", err, "backoff", backoff)
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
		}
	}()
	return nil
}

// Stop stops syncing and waits for queued messages to drain. Safe to call
// more than once.
func (c *Client) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
		c.client.StopSync()

		c.mu.Lock()
		for key, q := range c.queues {
			close(q)
			delete(c.queues, key)
		}
		c.mu.Unlock()
		c.wg.Wait()
	})
}

// IsAllowedRoom reports whether messages in roomID are handled.
func (c *Client) IsAllowedRoom(roomID string) bool {
	return len(c.config.AllowedRooms) == 0 || slices.Contains(c.config.AllowedRooms, roomID)
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite {
		return
	}
	if !c.IsAllowedRoom(evt.RoomID.String()) {
		c.logger.Info("matrix: ignoring invite to room outside allow list", "room", evt.RoomID, "sender", evt.Sender)
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		c.logger.Error("matrix: failed to join invited room", "room", evt.RoomID, "err", err)
		return
	}
	c.logger.Info("matrix: joined room", "room", evt.RoomID, "inviter", evt.Sender)
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText || msg.Body == "" {
		return
	}
	if !c.IsAllowedRoom(evt.RoomID.String()) {
		return
	}
	c.enqueue(evt)
}

// enqueue hands evt to the worker for its (room, sender) pair so one user's
// messages are answered in order while different users proceed in parallel.
func (c *Client) enqueue(evt *event.Event) {
	key := companion.Key(companion.ChannelMatrix, evt.RoomID.String(), evt.Sender.String())

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopCh:
		return
	default:
	}

	q, ok := c.queues[key]
	if !ok {
		q = make(chan *event.Event, queueDepth)
		c.queues[key] = q
		c.wg.Add(1)
		go c.worker(key, q)
	}
	select {
	case q <- evt:
	default:
		c.logger.Warn("matrix: queue full, dropping message", "key", key, "event_id", evt.ID)
	}
}

// worker answers q in order. It exits when q is closed by Stop, or after
// c.idle without messages, removing q so the next message starts a new one.
func (c *Client) worker(key string, q chan *event.Event) {
	defer c.wg.Done()
	timer := time.NewTimer(c.idle)
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-q:
			if !ok {
				return
			}
			c.respond(context.Background(), key, evt)
		case <-timer.C:
			// enqueue sends under mu, so an empty q here stays empty.
			c.mu.Lock()
			if c.queues[key] == q && len(q) == 0 {
				delete(c.queues, key)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
		timer.Reset(c.idle)
	}
}

func (c *Client) workerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues)
}

func (c *Client) respond(ctx context.Context, key string, evt *event.Event) {
	text := evt.Content.AsMessage().Body
	req := commands.Request{Key: key, UserID: evt.Sender.String()}

	c.typing(ctx, evt.RoomID, true)
	resp, err := c.responder.Handle(ctx, req, text)
	c.typing(ctx, evt.RoomID, false)

	if err != nil {
		reply := internalErrorText
		if errors.Is(err, commands.ErrUnknownCommand) {
			reply = unknownCommandText
		} else {
			c.logger.Error("matrix: failed to handle message", "key", key, "event_id", evt.ID, "err", err)
		}
		c.sendReply(ctx, evt, &event.MessageEventContent{MsgType: event.MsgNotice, Body: reply})
		return
	}
	if resp == nil {
		return
	}

	plain, htmlBody := FormatResponse(resp)
	c.sendReply(ctx, evt, &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          plain,
		Format:        event.FormatHTML,
		FormattedBody: htmlBody,
	})
}

func (c *Client) sendReply(ctx context.Context, evt *event.Event, content *event.MessageEventContent) {
	content.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: evt.ID}}
	if err := c.send(ctx, evt.RoomID, content); err != nil {
		c.logger.Error("matrix: failed to send reply", "room", evt.RoomID, "err", err)
	}
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	if err := c.join(ctx, roomID); err != nil {
		// Homeservers answer M_FORBIDDEN when already joined.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("matrix: join forbidden or already a member, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// UserID returns the bot's user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}
