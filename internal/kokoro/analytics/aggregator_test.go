package analytics

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/kokoro/internal/kokoro/mood"
)

// memRepo is an in-memory Repository guarded by one mutex.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]DailyAnalytic
	err  error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]DailyAnalytic)}
}

func (m *memRepo) Apply(ctx context.Context, userID string, day Day, fn func(a *DailyAnalytic, exists bool) error) (DailyAnalytic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return DailyAnalytic{}, m.err
	}
	key := userID + "|" + string(day)
	cur, ok := m.rows[key]
	if !ok {
		cur = New(userID, day)
	} else {
		cur = cur.Clone()
	}
	if err := fn(&cur, ok); err != nil {
		return DailyAnalytic{}, err
	}
	m.rows[key] = cur
	return cur.Clone(), nil
}

func (m *memRepo) List(ctx context.Context, userID string, from, to Day) ([]DailyAnalytic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []DailyAnalytic
	for d := from; d <= to; d = d.AddDays(1) {
		if a, ok := m.rows[userID+"|"+string(d)]; ok {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func distributionSum(a DailyAnalytic) int {
	n := 0
	for _, c := range a.MoodDistribution {
		n += c
	}
	return n
}

func TestUpdate_IncrementalMean(t *testing.T) {
	agg := NewAggregator(newMemRepo())
	ctx := context.Background()
	day := Day("2026-03-01")
	scores := []float64{0.25, 0.9, 0.5, 0.1, 0.75, 0.33}

	var sum float64
	var last DailyAnalytic
	for i, s := range scores {
		sum += s
		var err error
		last, err = agg.Update(ctx, "u1", day, mood.SentimentRecord{Mood: mood.Happy, Score: s})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		want := sum / float64(i+1)
		if math.Abs(last.AverageSentiment-want) > 1e-9 {
			t.Errorf("after %d updates average = %v, want %v", i+1, last.AverageSentiment, want)
		}
		if distributionSum(last) != last.TotalMessages {
			t.Errorf("distribution sum %d != total %d", distributionSum(last), last.TotalMessages)
		}
	}
	if last.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1 for a record created by Update", last.SessionCount)
	}
}

func TestUpdate_UnknownMoodCountsAsNeutral(t *testing.T) {
	agg := NewAggregator(newMemRepo())
	a, err := agg.Update(context.Background(), "u1", "2026-03-01", mood.SentimentRecord{Mood: "melancholic", Score: 0.4})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.MoodDistribution[mood.Neutral] != 1 || len(a.MoodDistribution) != 1 {
		t.Errorf("unexpected distribution %v", a.MoodDistribution)
	}
}

func TestRegisterSession_ThenUpdate(t *testing.T) {
	agg := NewAggregator(newMemRepo())
	ctx := context.Background()
	day := Day("2026-03-02")

	a, err := agg.RegisterSession(ctx, "u1", day)
	if err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if a.SessionCount != 1 || a.TotalMessages != 0 || a.AverageSentiment != 0 {
		t.Errorf("unexpected fresh record %+v", a)
	}
	if _, err := agg.RegisterSession(ctx, "u1", day); err != nil {
		t.Fatal(err)
	}
	a, err = agg.Update(ctx, "u1", day, mood.SentimentRecord{Mood: mood.Sad, Score: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if a.SessionCount != 2 || a.TotalMessages != 1 || a.AverageSentiment != 0.2 {
		t.Errorf("unexpected record after update %+v", a)
	}
}

func TestUpdate_Concurrent(t *testing.T) {
	agg := NewAggregator(newMemRepo())
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score := float64(i%10) / 10
			if _, err := agg.Update(ctx, "u1", "2026-03-03", mood.SentimentRecord{Mood: mood.Tired, Score: score}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	list, err := agg.History(ctx, "u1", 1, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC))
	if err != nil || len(list) != 1 {
		t.Fatalf("History: %v %v", list, err)
	}
	a := list[0]
	if a.TotalMessages != n || distributionSum(a) != n {
		t.Errorf("lost updates: %+v", a)
	}
	if math.Abs(a.AverageSentiment-0.45) > 1e-9 {
		t.Errorf("average = %v, want 0.45", a.AverageSentiment)
	}
	if agg.locks.size() != 0 {
		t.Errorf("keyed locks leaked: %d", agg.locks.size())
	}
}

func TestUpdate_RepositoryError(t *testing.T) {
	repo := newMemRepo()
	sentinel := errors.New("disk gone")
	repo.err = sentinel
	_, err := NewAggregator(repo).Update(context.Background(), "u1", "2026-03-01", mood.Fallback())
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestWeekly(t *testing.T) {
	repo := newMemRepo()
	agg := NewAggregator(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Outside the window.
	if _, err := agg.Update(ctx, "u1", "2026-03-01", mood.SentimentRecord{Mood: mood.Sad, Score: 0.0}); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.Update(ctx, "u1", "2026-03-05", mood.SentimentRecord{Mood: mood.Sad, Score: 0.2}); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.Update(ctx, "u1", "2026-03-10", mood.SentimentRecord{Mood: mood.Happy, Score: 0.8}); err != nil {
		t.Fatal(err)
	}

	r, err := agg.Weekly(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if r.Trend != Improving || r.Days != 2 || r.TotalMessages != 2 || r.TotalSessions != 2 {
		t.Errorf("unexpected report %+v", r)
	}
	if r.Summary != "Your average mood this week was 0.50/1.0" {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestWeekly_SessionOnlyDayIsNotScored(t *testing.T) {
	agg := NewAggregator(newMemRepo())
	ctx := context.Background()
	d1, d2 := Day("2026-03-09"), Day("2026-03-10")

	if _, err := agg.RegisterSession(ctx, "u1", d1); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.Update(ctx, "u1", d1, mood.SentimentRecord{Mood: mood.Happy, Score: 0.9}); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.RegisterSession(ctx, "u1", d2); err != nil {
		t.Fatal(err)
	}

	r, err := agg.Weekly(ctx, "u1", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if r.Trend != Stable || math.Abs(r.AverageSentiment-0.9) > 1e-9 {
		t.Errorf("trend = %s, average = %v", r.Trend, r.AverageSentiment)
	}
	if r.TotalMessages != 1 || r.TotalSessions != 2 || r.Days != 1 {
		t.Errorf("unexpected report %+v", r)
	}
}
