package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/kokoro/common/environment"
	"github.com/bdobrica/kokoro/common/version"
	"github.com/bdobrica/kokoro/internal/kokoro/app"
	"github.com/bdobrica/kokoro/internal/kokoro/observability"
)

func main() {
	if err := environment.LoadDotEnv("KOKORO_DOTENV"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	config := app.LoadConfig()
	observability.Setup(config.LogLevel, config.LogFormat)
	slog.Info(version.Info())

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kokoro, err := app.New(ctx, config, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize kokoro: %v\n", err)
		os.Exit(1)
	}

	runErr := kokoro.Run(ctx)
	if err := kokoro.Stop(); err != nil {
		slog.Error("shutdown", "err", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running kokoro: %v\n", runErr)
		os.Exit(1)
	}
}
