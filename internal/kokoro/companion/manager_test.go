package companion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func stubModel(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "Analyze the emotional content"):
		return "MOOD: calm\nSENTIMENT: 0.6\nINTENSITY: low\nKEYWORDS: fine", nil
	case strings.HasPrefix(prompt, "Analyze these recent messages"):
		return "PATTERN: Steady\nTREND: stable\nSUGGESTION: Keep going", nil
	case strings.HasPrefix(prompt, "Generate a warm, personalized greeting"):
		return "Good to see you again.", nil
	}
	return "Thanks for sharing.", nil
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *store.Store, *clock) {
	t.Helper()
	return newTestManagerWith(t, cfg, llm.GeneratorFunc(stubModel))
}

func newTestManagerWith(t *testing.T, cfg Config, gen llm.Generator) (*Manager, *store.Store, *clock) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "companion.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := &clock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	deps := session.Deps{
		Store:      db,
		Generator:  gen,
		Analyzer:   mood.NewAnalyzer(gen),
		Aggregator: analytics.NewAggregator(db),
		Selector:   habits.NewSelector(nil),
		Patterns:   mood.NewPatternAnalyzer(gen),
		Now:        clk.Now,
	}
	return NewManager(deps, cfg, nil), db, clk
}

func TestKey(t *testing.T) {
	if got := Key(ChannelMatrix, "!room:x", "@alice:x"); got != "matrix:!room:x|@alice:x" {
		t.Errorf("Key = %q", got)
	}
	if got := Key(ChannelAPI, "abc"); got != "api:abc" {
		t.Errorf("Key = %q", got)
	}
}

func TestSend_AutoStarts(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	key := Key(ChannelMatrix, "!r", "@a")

	res, err := m.Send(ctx, key, "@a", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Greeting == nil || res.Greeting.Text != session.CannedGreeting {
		t.Errorf("first Send should carry a greeting, got %+v", res.Greeting)
	}
	if res.Reply.Text != "Thanks for sharing." {
		t.Errorf("reply = %q", res.Reply.Text)
	}

	res, err = m.Send(ctx, key, "@a", "again")
	if err != nil {
		t.Fatal(err)
	}
	if res.Greeting != nil {
		t.Error("second Send should reuse the session")
	}
	st, err := m.Snapshot(key)
	if err != nil || st.MessageCount != 5 {
		t.Errorf("snapshot = %+v, %v", st, err)
	}
}

func TestStart_ReplacesSession(t *testing.T) {
	m, db, _ := newTestManager(t, Config{})
	ctx := context.Background()
	key := Key(ChannelWS, "conn")

	first, err := m.Start(ctx, key, "u1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Start(ctx, key, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID == second.SessionID || !second.Returning {
		t.Errorf("expected a new returning session: %+v / %+v", first, second)
	}
	old, err := db.GetSession(ctx, first.SessionID)
	if err != nil || old.IsActive {
		t.Errorf("replaced session should be ended: %+v, %v", old, err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestOpenMessageEnd(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	g, err := m.Open(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	key := Key(ChannelAPI, g.SessionID)
	if _, err := m.Message(ctx, key, "hi"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if _, err := m.Message(ctx, Key(ChannelAPI, "missing"), "hi"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown key = %v", err)
	}
	if sg, err := m.Suggest(ctx, key); err != nil || len(sg) == 0 {
		t.Errorf("Suggest = %v, %v", sg, err)
	}

	ended, err := m.End(ctx, key)
	if err != nil || !ended {
		t.Fatalf("End = %v, %v", ended, err)
	}
	if ended, _ := m.End(ctx, key); ended {
		t.Error("second End should find nothing")
	}
	if _, err := m.Snapshot(key); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Snapshot after End = %v", err)
	}
}

func TestSend_RateLimited(t *testing.T) {
	m, db, _ := newTestManager(t, Config{RateLimit: 2})
	ctx := context.Background()
	key := Key(ChannelMatrix, "!r", "@a")

	for range 2 {
		if res, err := m.Send(ctx, key, "@a", "hi"); err != nil || res.RateLimited {
			t.Fatalf("Send = %+v, %v", res, err)
		}
	}
	res, err := m.Send(ctx, key, "@a", "hi")
	if err != nil || !res.RateLimited || res.Reply.Text != RateLimitMessage {
		t.Fatalf("third Send = %+v, %v", res, err)
	}
	st, _ := m.Snapshot(key)
	msgs, err := db.SessionMessages(ctx, st.SessionID)
	if err != nil || len(msgs) != 5 {
		t.Errorf("rate-limited turn must not persist: %d messages, %v", len(msgs), err)
	}
}

func TestReap(t *testing.T) {
	m, db, clk := newTestManager(t, Config{Cooldown: 10 * time.Minute})
	ctx := context.Background()

	idle, err := m.Start(ctx, Key(ChannelWS, "idle"), "u1")
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(8 * time.Minute)
	if _, err := m.Send(ctx, Key(ChannelWS, "busy"), "u2", "hi"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Minute)

	if n := m.Reap(ctx, clk.Now()); n != 1 {
		t.Fatalf("Reap = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
	rec, err := db.GetSession(ctx, idle.SessionID)
	if err != nil || rec.IsActive {
		t.Errorf("idle session should be ended: %+v, %v", rec, err)
	}
	if _, err := m.Snapshot(Key(ChannelWS, "busy")); err != nil {
		t.Errorf("busy session reaped: %v", err)
	}
}

func TestWeeklyInsightsHistory(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	if _, err := m.Send(ctx, Key(ChannelWS, "c"), "u1", "I'm fine"); err != nil {
		t.Fatal(err)
	}

	r, err := m.Weekly(ctx, "u1")
	if err != nil || r.TotalMessages != 1 || r.TotalSessions != 1 {
		t.Errorf("Weekly = %+v, %v", r, err)
	}
	p, err := m.Insights(ctx, "u1")
	if err != nil || p.Pattern != "Steady" {
		t.Errorf("Insights = %+v, %v", p, err)
	}
	h, err := m.History(ctx, "u1", 7)
	if err != nil || len(h) != 1 || h[0].MoodDistribution[mood.Calm] != 1 {
		t.Errorf("History = %+v, %v", h, err)
	}
}

func TestConcurrentUsers(t *testing.T) {
	m, _, _ := newTestManager(t, Config{RateLimit: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for u := range 4 {
		user := string(rune('a' + u))
		key := Key(ChannelMatrix, "!room", user)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.Send(ctx, key, user, "hello"); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Send: %v", err)
	}
	for u := range 4 {
		st, err := m.Snapshot(Key(ChannelMatrix, "!room", string(rune('a'+u))))
		if err != nil || st.MessageCount != 21 {
			t.Errorf("user %d: MessageCount = %d, %v", u, st.MessageCount, err)
		}
	}
}

func TestSend_BusySessionDoesNotBlockRegistry(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if !strings.HasPrefix(prompt, "Analyze") && strings.Contains(prompt, "User: slow") {
			once.Do(func() { close(entered) })
			<-release
		}
		return stubModel(ctx, prompt)
	})
	m, _, _ := newTestManagerWith(t, Config{}, gen)
	ctx := context.Background()
	busy := Key(ChannelMatrix, "!r", "@a")

	if _, err := m.Start(ctx, busy, "@a"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, text := range []string{"slow", "queued"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Send(ctx, busy, "@a", text)
			errs <- err
		}()
		if text == "slow" {
			<-entered
		}
	}
	// Give the queued Send time to reach the busy session.
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(ctx, Key(ChannelMatrix, "!r", "@b"), "@b", "hi")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Send on idle key: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Send on another key blocked behind a running turn")
	}

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("busy Send: %v", err)
		}
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}
