// Package app wires the companion together and runs its transports.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/kokoro/common/version"
	"github.com/bdobrica/kokoro/internal/kokoro/analytics"
	"github.com/bdobrica/kokoro/internal/kokoro/api"
	"github.com/bdobrica/kokoro/internal/kokoro/commands"
	"github.com/bdobrica/kokoro/internal/kokoro/companion"
	"github.com/bdobrica/kokoro/internal/kokoro/habits"
	"github.com/bdobrica/kokoro/internal/kokoro/llm"
	"github.com/bdobrica/kokoro/internal/kokoro/matrix"
	"github.com/bdobrica/kokoro/internal/kokoro/mood"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
	"github.com/bdobrica/kokoro/internal/kokoro/session"
	"github.com/bdobrica/kokoro/internal/kokoro/store"
	"github.com/bdobrica/kokoro/internal/kokoro/store/mongostore"
)

const reaperInterval = time.Minute

// App is the running companion.
type App struct {
	config  Config
	store   store.Gateway
	manager *companion.Manager
	api     *api.Server
	matrix  *matrix.Client
}

// New opens the store and builds every component. Generator overrides the
// model client; nil builds one from config.
func New(ctx context.Context, config Config, gen llm.Generator) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	observability.RegisterSecrets(config.LLM.APIKey, config.Matrix.AccessToken)

	gw, sqlite, err := openStore(ctx, config)
	if err != nil {
		return nil, err
	}

	if gen == nil {
		gen, err = newGenerator(config.LLM)
		if err != nil {
			gw.Close()
			return nil, err
		}
	}

	selector, err := newSelector(config, gen)
	if err != nil {
		gw.Close()
		return nil, err
	}

	deps := session.Deps{
		Store:      gw,
		Generator:  gen,
		Analyzer:   mood.NewAnalyzer(gen),
		Aggregator: analytics.NewAggregator(gw),
		Selector:   selector,
		Patterns:   mood.NewPatternAnalyzer(gen),
	}
	if config.PersonalisedFeedback {
		deps.Feedback = mood.NewFeedbackWriter(gen)
	}
	mgr := companion.NewManager(deps, companion.Config{
		Cooldown:  config.Cooldown,
		RateLimit: config.RateLimit,
		Session: session.Config{
			MaxHistory:      config.MaxHistory,
			ContextTokens:   config.ContextTokens,
			SuggestionCount: config.SuggestionCount,
		},
	}, slog.Default())

	a := &App{config: config, store: gw, manager: mgr}

	if config.HTTPAddr != "" {
		a.api = api.New(api.Options{
			Addr:        config.HTTPAddr,
			CORSOrigins: config.CORSOrigins,
			Manager:     mgr,
			Store:       gw,
			Logger:      slog.Default(),
		})
	}

	if config.Matrix.Enabled() {
		mcfg := config.Matrix
		if sqlite != nil {
			mcfg.DB = sqlite.DB()
		}
		handlers := commands.NewHandlers(mgr, commands.NewRouter(commands.DefaultPrefix))
		a.matrix, err = matrix.New(mcfg, handlers, slog.Default())
		if err != nil {
			gw.Close()
			return nil, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, config Config) (store.Gateway, *store.Store, error) {
	switch config.StoreKind {
	case StoreMongo:
		ms, err := mongostore.Connect(ctx, config.MongoURI, config.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("app: open mongo store: %w", err)
		}
		slog.Info("store opened", "kind", StoreMongo, "database", config.MongoDatabase)
		return ms, nil, nil
	default:
		s, err := store.New(config.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("app: open sqlite store: %w", err)
		}
		slog.Info("store opened", "kind", StoreSQLite, "path", config.DatabasePath)
		return s, s, nil
	}
}

func newGenerator(cfg llm.Config) (llm.Generator, error) {
	if cfg.APIKey == "" {
		slog.Warn("LLM_API_KEY is not set; replies will use the fallback text")
		return llm.Offline(), nil
	}
	client, err := llm.NewOpenAI(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return client, nil
}

func newSelector(config Config, gen llm.Generator) (*habits.Selector, error) {
	catalog := habits.DefaultCatalog()
	if config.HabitCatalogPath != "" {
		c, err := habits.LoadCatalog(config.HabitCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		catalog = c
	}
	opts := []habits.Option{habits.WithPicker(habits.PickerByName(config.HabitPicker))}
	if config.PersonalisedHabits {
		opts = append(opts, habits.WithDescriber(habits.LLMDescriber{Gen: gen}))
	}
	return habits.NewSelector(catalog, opts...), nil
}

// API returns the HTTP server, or nil when HTTP is disabled.
func (a *App) API() *api.Server { return a.api }

// Manager returns the session registry.
func (a *App) Manager() *companion.Manager { return a.manager }

// Run starts the transports and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("starting", "version", version.Info())

	if a.api != nil {
		if err := a.api.Start(ctx); err != nil {
			return err
		}
	}
	if a.matrix != nil {
		slog.Info("starting Matrix sync", "user_id", a.matrix.UserID())
		if err := a.matrix.Start(ctx); err != nil {
			return fmt.Errorf("app: start matrix: %w", err)
		}
	}
	go a.manager.RunReaper(ctx, reaperInterval)

	slog.Info("kokoro is running")
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// Stop ends live sessions and closes every component.
func (a *App) Stop() error {
	if a.matrix != nil {
		a.matrix.Stop()
	}
	if a.api != nil {
		a.api.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.manager.Close(ctx)

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("app: close store: %w", err)
	}
	return nil
}
