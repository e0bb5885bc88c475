package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthtally/truthtally/internal/audit"
	"github.com/truthtally/truthtally/internal/auth"
	"github.com/truthtally/truthtally/internal/config"
	httpapp "github.com/truthtally/truthtally/internal/http"
	"github.com/truthtally/truthtally/internal/logging"
	"github.com/truthtally/truthtally/internal/moderation"
	"github.com/truthtally/truthtally/internal/rate"
	"github.com/truthtally/truthtally/internal/retry"
	"github.com/truthtally/truthtally/internal/store/sqlite"
	"github.com/truthtally/truthtally/internal/tally"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP API server",
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// bootstrap loads configuration, builds the logger and opens the database.
func bootstrap() (config.Config, *slog.Logger, *sqlite.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("open db: %w", err)
	}
	return cfg, logger, st, nil
}

func retryPolicy(cfg config.Config) retry.Policy {
	p := retry.Default()
	p.MaxRetries = cfg.MaxConflictRetries
	return p
}

func newModeration(st *sqlite.Store, recorder *audit.Recorder, cfg config.Config, logger *slog.Logger) *moderation.Service {
	return moderation.NewService(st, recorder, moderation.Options{Retry: retryPolicy(cfg), Logger: logger})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, st, err := bootstrap()
	if err != nil {
		return err
	}
	defer st.Close()

	recorder := audit.NewRecorder()
	mod := newModeration(st, recorder, cfg, logger)
	votes := tally.NewEngine(st, recorder, tally.Options{
		Threshold: cfg.FlagThreshold,
		Retry:     retryPolicy(cfg),
		Logger:    logger,
	})
	authSvc := auth.NewService(st, auth.Options{
		TokenTTL:         cfg.TokenTTL,
		BcryptCost:       cfg.BcryptCost,
		IdentityCacheTTL: cfg.IdentityCacheTTL,
	})
	server := httpapp.NewServer(mod, votes, authSvc, rate.NewMemory(), cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("truthtally listening", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-stop:
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
