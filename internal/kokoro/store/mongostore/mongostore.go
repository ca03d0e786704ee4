// Package mongostore is the MongoDB implementation of store.Gateway.
//
// Collections mirror the document layout users/{user_id},
// sessions/{session_id}, messages/{message_id} and analytics/{user_id}_{date}.
// Counters use $inc; analytics use a version field for compare-and-swap.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bdobrica/kokoro/common/retry"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

const (
	usersCollection     = "users"
	sessionsCollection  = "sessions"
	messagesCollection  = "messages"
	analyticsCollection = "analytics"

	// DefaultMaxAttempts bounds the analytic compare-and-swap loop.
	DefaultMaxAttempts = 8

	connectTimeout = 10 * time.Second
)

var _ store.Gateway = (*Store)(nil)

// Store is a store.Gateway over one MongoDB database.
type Store struct {
	client      *mongo.Client
	users       *mongo.Collection
	sessions    *mongo.Collection
	messages    *mongo.Collection
	analytics   *mongo.Collection
	maxAttempts int
}

// Connect dials uri, pings the primary and ensures indexes on dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, store.Wrap("mongo connect", err)
	}
	ping := retry.Policy{Attempts: 5, Base: 500 * time.Millisecond, Name: "mongo ping"}
	if err := retry.Do(ctx, ping, func(ctx context.Context) error { return client.Ping(ctx, nil) }); err != nil {
		client.Disconnect(context.Background())
		return nil, store.Wrap("mongo ping", err)
	}

	s := New(client, dbName)
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("connected to mongodb", "database", dbName)
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:      client,
		users:       db.Collection(usersCollection),
		sessions:    db.Collection(sessionsCollection),
		messages:    db.Collection(messagesCollection),
		analytics:   db.Collection(analyticsCollection),
		maxAttempts: DefaultMaxAttempts,
	}
}

// EnsureIndexes creates the secondary indexes used by list queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}},
	}); err != nil {
		return store.Wrap("index sessions", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return store.Wrap("index messages", err)
	}
	if _, err := s.analytics.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
	}); err != nil {
		return store.Wrap("index analytics", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("ping", s.client.Ping(ctx, nil))
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.users.Database().Drop(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*store.User, error) {
	var u store.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("get user", err)
	}
	if u.Preferences == nil {
		u.Preferences = map[string]string{}
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	doc := *u
	if doc.Preferences == nil {
		doc.Preferences = map[string]string{}
	}
	_, err := s.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	return store.Wrap("create user", err)
}

func (s *Store) TouchUserSession(ctx context.Context, userID string, at time.Time) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$inc": bson.M{"total_sessions": 1},
		"$set": bson.M{"last_active": at.UTC()},
	})
	if err != nil {
		return store.Wrap("touch user", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	_, err := s.sessions.InsertOne(ctx, sess)
	return store.Wrap("create session", err)
}

func (s *Store) EndSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "ended_at": at.UTC()}},
	)
	if err != nil {
		return false, store.Wrap("end session", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	var sess store.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("get session", err)
	}
	return &sess, nil
}

func (s *Store) ListUserSessions(ctx context.Context, userID string, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.sessions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, store.Wrap("list sessions", err)
	}
	var out []store.Session
	if err := cursor.All(ctx, &out); err != nil {
		return nil, store.Wrap("list sessions", err)
	}
	return out, nil
}

// SaveMessage inserts the message and then bumps both counters with $inc.
func (s *Store) SaveMessage(ctx context.Context, m *store.Message) error {
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return store.Wrap("save message", err)
	}
	if _, err := s.sessions.UpdateOne(ctx, bson.M{"_id": m.SessionID},
		bson.M{"$inc": bson.M{"message_count": 1}}); err != nil {
		return store.Wrap("save message: session counter", err)
	}
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": m.UserID}, bson.M{
		"$inc": bson.M{"total_messages": 1},
		"$set": bson.M{"last_active": m.Timestamp.UTC()},
	}); err != nil {
		return store.Wrap("save message: user counter", err)
	}
	return nil
}

func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, store.Wrap("session messages", err)
	}
	var out []store.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, store.Wrap("session messages", err)
	}
	return out, nil
}

func analyticID(userID, day string) string {
	return fmt.Sprintf("%s_%s", userID, day)
}
