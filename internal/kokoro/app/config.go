package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/kokoro/common/environment"
	"github.com/bdobrica/kokoro/internal/kokoro/companion"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/matrix"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds application configuration
type Config struct {
	StoreKind     string
	DatabasePath  string
	MongoURI      string
	MongoDatabase string

	LLM llm.Config

	HTTPAddr    string
	CORSOrigins []string

	Matrix matrix.Config

	SuggestionCount      int
	MaxHistory           int
	ContextTokens        int
	Cooldown             time.Duration
	RateLimit            int
	HabitCatalogPath     string
	HabitPicker          string
	PersonalisedHabits   bool
	PersonalisedFeedback bool

	LogLevel  string
	LogFormat string
}

// LoadConfig reads Config from the environment.
func LoadConfig() Config {
	return Config{
		StoreKind:     environment.StringOr("KOKORO_STORE", StoreSQLite),
		DatabasePath:  environment.StringOr("DATABASE_PATH", "./kokoro.db"),
		MongoURI:      environment.StringOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: environment.StringOr("MONGO_DATABASE", "kokoro"),

		LLM: llm.Config{
			APIKey:     environment.StringOr("LLM_API_KEY", ""),
			BaseURL:    environment.StringOr("LLM_BASE_URL", llm.DefaultBaseURL),
			Model:      environment.StringOr("LLM_MODEL", llm.DefaultModel),
			Timeout:    environment.DurationOr("LLM_TIMEOUT", llm.DefaultTimeout),
			MaxRetries: environment.IntOr("LLM_MAX_RETRIES", llm.DefaultMaxRetries),
		},

		HTTPAddr:    environment.StringOr("HTTP_ADDR", ":8080"),
		CORSOrigins: environment.StringSliceOr("HTTP_CORS_ORIGINS", nil),

		Matrix: matrix.Config{
			Homeserver:   environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:       environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken:  environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			AllowedRooms: environment.StringSliceOr("MATRIX_ALLOWED_ROOMS", nil),
		},

		SuggestionCount:      environment.IntOr("KOKORO_SUGGESTION_COUNT", habits.DefaultCount),
		MaxHistory:           environment.IntOr("KOKORO_MAX_HISTORY", session.DefaultMaxHistory),
		ContextTokens:        environment.IntOr("KOKORO_CONTEXT_TOKENS", session.DefaultContextTokens),
		Cooldown:             environment.DurationOr("KOKORO_COOLDOWN", companion.DefaultCooldown),
		RateLimit:            environment.IntOr("KOKORO_RATE_LIMIT", companion.DefaultRateLimit),
		HabitCatalogPath:     environment.StringOr("KOKORO_HABIT_CATALOG", ""),
		HabitPicker:          environment.StringOr("KOKORO_HABIT_PICKER", "hash"),
		PersonalisedHabits:   environment.BoolOr("KOKORO_PERSONALISED_HABITS", false),
		PersonalisedFeedback: environment.BoolOr("KOKORO_PERSONALISED_FEEDBACK", true),

		LogLevel:  environment.StringOr("LOG_LEVEL", "info"),
		LogFormat: environment.StringOr("LOG_FORMAT", "text"),
	}
}

// Validate rejects inconsistent settings. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreKind {
	case StoreSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for the sqlite store"))
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("KOKORO_STORE must be %q or %q, got %q", StoreSQLite, StoreMongo, c.StoreKind))
	}

	m := c.Matrix
	set := 0
	for _, v := range []string{m.Homeserver, m.UserID, m.AccessToken} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, errors.New("MATRIX_HOMESERVER, MATRIX_USER_ID and MATRIX_ACCESS_TOKEN must be set together"))
	}
	if c.HTTPAddr == "" && !m.Enabled() {
		errs = append(errs, errors.New("nothing to serve: set HTTP_ADDR or the Matrix credentials"))
	}

	if c.HabitPicker != "hash" && c.HabitPicker != "random" {
		errs = append(errs, fmt.Errorf("KOKORO_HABIT_PICKER must be hash or random, got %q", c.HabitPicker))
	}
	if c.SuggestionCount < 1 {
		errs = append(errs, errors.New("KOKORO_SUGGESTION_COUNT must be at least 1"))
	}
	if c.MaxHistory < 1 || c.ContextTokens < 1 {
		errs = append(errs, errors.New("KOKORO_MAX_HISTORY and KOKORO_CONTEXT_TOKENS must be positive"))
	}
	if c.Cooldown <= 0 {
		errs = append(errs, errors.New("KOKORO_COOLDOWN must be positive"))
	}
	if c.RateLimit < 1 {
		errs = append(errs, errors.New("KOKORO_RATE_LIMIT must be at least 1"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
