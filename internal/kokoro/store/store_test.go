package store_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "kokoro-test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUserAndSession(t *testing.T, s *store.Store, userID, sessionID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateUser(ctx, &store.User{UserID: userID, CreatedAt: at, LastActive: at}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateSession(ctx, &store.Session{SessionID: sessionID, UserID: userID, StartedAt: at, IsActive: true}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func TestNew_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := store.New(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s, err = store.New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.GetUser(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	u := &store.User{UserID: "u1", CreatedAt: now, LastActive: now, Preferences: map[string]string{"tone": "calm"}}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, u); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate CreateUser = %v, want ErrAlreadyExists", err)
	}

	later := now.Add(time.Hour)
	if err := s.TouchUserSession(ctx, "u1", later); err != nil {
		t.Fatalf("TouchUserSession: %v", err)
	}
	if err := s.TouchUserSession(ctx, "ghost", later); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("touching unknown user = %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalSessions != 1 || !got.LastActive.Equal(later) || got.Preferences["tone"] != "calm" {
		t.Errorf("unexpected user %+v", got)
	}
}

func TestSessionsAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedUserAndSession(t, s, "u1", "s1", now)

	score := 0.25
	msgs := []store.Message{
		{MessageID: "m1", UserID: "u1", SessionID: "s1", Role: store.RoleAssistant, Content: "Hello!", Timestamp: now},
		{MessageID: "m2", UserID: "u1", SessionID: "s1", Role: store.RoleUser, Content: "I feel anxious", Timestamp: now.Add(time.Second), MoodDetected: "anxious", SentimentScore: &score},
	}
	for i := range msgs {
		if err := s.SaveMessage(ctx, &msgs[i]); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	got, err := s.SessionMessages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].MessageID != "m1" || got[1].MoodDetected != "anxious" || *got[1].SentimentScore != 0.25 {
		t.Errorf("unexpected messages %+v", got)
	}
	if got[0].SentimentScore != nil {
		t.Error("assistant message should have no score")
	}

	sess, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.MessageCount != 2 || !sess.IsActive || sess.EndedAt != nil {
		t.Errorf("unexpected session %+v", sess)
	}
	u, _ := s.GetUser(ctx, "u1")
	if u.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d", u.TotalMessages)
	}

	end := now.Add(time.Minute)
	ended, err := s.EndSession(ctx, "s1", end)
	if err != nil || !ended {
		t.Fatalf("EndSession = %v, %v", ended, err)
	}
	ended, err = s.EndSession(ctx, "s1", end.Add(time.Hour))
	if err != nil || ended {
		t.Errorf("second EndSession = %v, %v; want false, nil", ended, err)
	}
	sess, _ = s.GetSession(ctx, "s1")
	if sess.IsActive || sess.EndedAt == nil || !sess.EndedAt.Equal(end) {
		t.Errorf("end timestamp rewritten: %+v", sess)
	}

	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession unknown = %v", err)
	}
}

func TestListUserSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedUserAndSession(t, s, "u1", "s0", base)
	for i, id := range []string{"s1", "s2", "s3"} {
		at := base.Add(time.Duration(i+1) * time.Hour)
		if err := s.CreateSession(ctx, &store.Session{SessionID: id, UserID: "u1", StartedAt: at, IsActive: true}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListUserSessions(ctx, "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SessionID != "s3" || got[1].SessionID != "s2" {
		t.Errorf("unexpected order %+v", got)
	}
}

func TestAnalytics_ConcurrentApply(t *testing.T) {
	s := newTestStore(t)
	agg := analytics.NewAggregator(s)
	ctx := context.Background()
	day := analytics.Day("2026-03-01")
	const workers = 50

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := mood.Happy
			if i%2 == 0 {
				m = mood.Sad
			}
			if _, err := agg.Update(ctx, "u1", day, mood.SentimentRecord{Mood: m, Score: float64(i) / 100}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	list, err := s.List(ctx, "u1", day, day)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	a := list[0]
	sum := 0
	for _, c := range a.MoodDistribution {
		sum += c
	}
	if a.TotalMessages != workers || sum != workers {
		t.Errorf("lost updates: total=%d sum=%d", a.TotalMessages, sum)
	}
	if a.MoodDistribution[mood.Happy] != 25 || a.MoodDistribution[mood.Sad] != 25 {
		t.Errorf("distribution = %v", a.MoodDistribution)
	}
	if math.Abs(a.AverageSentiment-0.245) > 1e-9 {
		t.Errorf("average = %v, want 0.245", a.AverageSentiment)
	}
}

func TestAnalytics_ListRangeAndUsers(t *testing.T) {
	s := newTestStore(t)
	agg := analytics.NewAggregator(s)
	ctx := context.Background()
	for _, d := range []analytics.Day{"2026-02-27", "2026-03-01", "2026-03-03"} {
		if _, err := agg.RegisterSession(ctx, "u1", d); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := agg.RegisterSession(ctx, "u2", "2026-03-01"); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, "u1", "2026-02-28", "2026-03-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Date != "2026-03-01" || got[1].Date != "2026-03-03" {
		t.Errorf("unexpected range %+v", got)
	}
	if got[0].SessionCount != 1 || got[0].TotalMessages != 0 {
		t.Errorf("unexpected registered record %+v", got[0])
	}
}

func TestApply_CallbackErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := s.Apply(ctx, "u1", "2026-03-01", func(a *analytics.DailyAnalytic, exists bool) error {
		a.TotalMessages = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Apply = %v", err)
	}
	list, _ := s.List(ctx, "u1", "2026-03-01", "2026-03-01")
	if len(list) != 0 {
		t.Errorf("rolled back write persisted: %+v", list)
	}
}

func TestError_MatchesErrStorage(t *testing.T) {
	err := store.Wrap("op", errors.New("disk full"))
	if !errors.Is(err, store.ErrStorage) {
		t.Error("wrapped error should match ErrStorage")
	}
	if errors.Is(store.ErrNotFound, store.ErrStorage) {
		t.Error("ErrNotFound must not match ErrStorage")
	}
	if store.Wrap("op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
