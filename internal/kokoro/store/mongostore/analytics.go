package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
)

type analyticDoc struct {
	ID               string         `bson:"_id"`
	UserID           string         `bson:"user_id"`
	Date             string         `bson:"date"`
	MoodDistribution map[string]int `bson:"mood_distribution"`
	AverageSentiment float64        `bson:"average_sentiment"`
	TotalMessages    int            `bson:"total_messages"`
	SessionCount     int            `bson:"session_count"`
	Version          int64          `bson:"version"`
}

func (d analyticDoc) toAnalytic() analytics.DailyAnalytic {
	a := analytics.New(d.UserID, analytics.Day(d.Date))
	for k, v := range d.MoodDistribution {
		a.MoodDistribution[mood.Tag(k)] = v
	}
	a.AverageSentiment = d.AverageSentiment
	a.TotalMessages = d.TotalMessages
	a.SessionCount = d.SessionCount
	return a
}

func fromAnalytic(a analytics.DailyAnalytic, version int64) analyticDoc {
	dist := make(map[string]int, len(a.MoodDistribution))
	for k, v := range a.MoodDistribution {
		dist[string(k)] = v
	}
	return analyticDoc{
		ID:               analyticID(a.UserID, string(a.Date)),
		UserID:           a.UserID,
		Date:             string(a.Date),
		MoodDistribution: dist,
		AverageSentiment: a.AverageSentiment,
		TotalMessages:    a.TotalMessages,
		SessionCount:     a.SessionCount,
		Version:          version,
	}
}

// Apply reads the document, runs fn and writes back only if the version is
// unchanged, retrying up to maxAttempts times before giving up with
// store.ErrConflict.
func (s *Store) Apply(ctx context.Context, userID string, day analytics.Day, fn func(a *analytics.DailyAnalytic, exists bool) error) (analytics.DailyAnalytic, error) {
	id := analyticID(userID, string(day))

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var doc analyticDoc
		exists := true
		err := s.analytics.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			exists = false
			doc = analyticDoc{ID: id, UserID: userID, Date: string(day)}
		case err != nil:
			return analytics.DailyAnalytic{}, store.Wrap("apply analytic: read", err)
		}

		cur := doc.toAnalytic()
		if err := fn(&cur, exists); err != nil {
			return analytics.DailyAnalytic{}, err
		}
		next := fromAnalytic(cur, doc.Version+1)

		if !exists {
			_, err := s.analytics.InsertOne(ctx, next)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return analytics.DailyAnalytic{}, store.Wrap("apply analytic: insert", err)
			}
			return cur, nil
		}

		res, err := s.analytics.ReplaceOne(ctx, bson.M{"_id": id, "version": doc.Version}, next)
		if err != nil {
			return analytics.DailyAnalytic{}, store.Wrap("apply analytic: replace", err)
		}
		if res.MatchedCount == 1 {
			return cur, nil
		}
	}
	return analytics.DailyAnalytic{}, store.Wrap("apply analytic", store.ErrConflict)
}

func (s *Store) List(ctx context.Context, userID string, from, to analytics.Day) ([]analytics.DailyAnalytic, error) {
	filter := bson.M{
		"user_id": userID,
		"date":    bson.M{"$gte": string(from), "$lte": string(to)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := s.analytics.Find(ctx, filter, opts)
	if err != nil {
		return nil, store.Wrap("list analytics", err)
	}
	var docs []analyticDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.Wrap("list analytics", err)
	}
	out := make([]analytics.DailyAnalytic, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAnalytic())
	}
	return out, nil
}
