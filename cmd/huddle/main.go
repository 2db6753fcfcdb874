package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"huddle/internal/app"
	"huddle/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	seedPath   string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("huddle", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", os.Getenv("HUDDLE_CONFIG_FILE"), "path to a JSON or YAML config file")
	fs.StringVar(&opts.seedPath, "seed", "", "path to a JSON seed file loaded before serving")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// run owns every resource so deferred cleanup happens before the process exits.
func run(args []string) error {
	// STEP 1: .env is optional
	_ = godotenv.Load()

	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	// STEP 2: Configuration (file > env > defaults) and logger
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.Log.Level)

	// STEP 3: Build the application
	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// STEP 4: Optional fixture data
	if opts.seedPath != "" {
		if err := seedApplication(ctx, application, opts.seedPath); err != nil {
			if stopErr := application.Stop(context.Background()); stopErr != nil {
				log.Error("Cleanup after failed seed", "error", stopErr)
			}
			return err
		}
	}

	// STEP 5: Serve until a signal arrives
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Info("Signal received, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func seedApplication(ctx context.Context, application *app.Application, path string) error {
	seed, err := app.LoadSeedFile(path)
	if err != nil {
		return err
	}
	return application.Seed(ctx, seed)
}
