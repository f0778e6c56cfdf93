package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/database"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/retry"
)

// store is the opened session store with its schema applied.
type store struct {
	sessions repositories.SessionRepository
	users    repositories.UserRepository
	ping     func(ctx context.Context) error
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.Database.Type {
	case database.TypePostgres:
		connStr := cfg.Database.ConnectionString()
		logger.Info("Connecting to PostgreSQL", zap.String("dsn", logging.SanitizeConnectionString(connStr)))

		db, err := database.NewConnection(ctx, &database.Config{
			URL:            connStr,
			MaxConnections: cfg.Database.MaxConnections,
			MinConnections: cfg.Database.MaxIdleConns,
			ConnectRetry: &retry.Config{
				MaxRetries:   5,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2.0,
				JitterFactor: 0.1,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}

		sqlDB := db.SQL()
		err = database.RunMigrations(sqlDB, database.TypePostgres, logger)
		sqlDB.Close()
		if err != nil {
			db.Close()
			return nil, err
		}

		return &store{
			sessions: repositories.NewSessionRepository(db),
			users:    repositories.NewUserRepository(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil

	case database.TypeSQLite:
		logger.Info("Opening SQLite database", zap.String("path", cfg.Database.SQLitePath))

		db, err := database.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(db, database.TypeSQLite, logger); err != nil {
			db.Close()
			return nil, err
		}

		return &store{
			sessions: repositories.NewSQLiteSessionRepository(db),
			users:    repositories.NewSQLiteUserRepository(db),
			ping:     db.PingContext,
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close SQLite database", zap.Error(err))
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}
