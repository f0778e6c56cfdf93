package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/agents"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/handlers"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/llm"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/middleware"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/prompts"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/retry"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	configPath string
	debug      bool
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", config.DefaultConfigPath, "path to config.yaml")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "log at DEBUG level")
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.LoadFile(opts.configPath, Version)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Env, opts.debug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return err
	}
	defer st.close()

	model, err := llm.NewClientFromConfig(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.Endpoint(),
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		logger.Error("Failed to create LLM client", zap.Error(err))
		return err
	}

	handler, err := newServer(cfg, st, model, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-blueprint", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// newServer wires the services over st and model and returns the root handler.
func newServer(cfg *config.Config, st *store, model llm.LLMClient, logger *zap.Logger) (http.Handler, error) {
	catalogue, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt catalogue: %w", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Agents.MaxRetries
	invoker := agents.NewInvoker(model, catalogue, agents.Config{
		Timeout: cfg.Agents.Timeout,
		Retry:   retryCfg,
		Breaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.Agents.BreakerThreshold,
			ResetAfter: cfg.Agents.BreakerReset,
		},
	}, logger)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("JWT_SECRET not set; tokens are signed with an ephemeral key and will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	sessionService := services.NewSessionService(st.sessions, st.users, logger)
	workflow := services.NewWorkflowService(st.sessions, invoker, logger)
	blueprint := services.NewBlueprintService(st.sessions)
	users := services.NewUserService(st.users, logger)

	authService := auth.NewAuthService(tokens, logger)
	authMiddleware := auth.NewMiddleware(authService, cfg.Auth.EnableVerification, logger)
	guard := handlers.NewOwnershipGuard(sessionService, authService, cfg.Auth.EnableVerification, logger)
	cookies := auth.DeriveCookieSettings(cfg.Auth.BaseURL, cfg.Auth.CookieDomain)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, st.ping, invoker.Provider, logger).RegisterRoutes(mux)
	handlers.NewInfoHandler(cfg.Version, logger).RegisterRoutes(mux)
	handlers.NewUsersHandler(users, tokens, cookies, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSessionHandler(sessionService, workflow, blueprint, guard, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAgentHandler(workflow, guard, logger).RegisterRoutes(mux, authMiddleware)

	return middleware.Chain(mux,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
	), nil
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
