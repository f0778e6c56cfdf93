package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath, Version)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Env, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("Migration failed", zap.Error(err))
				return err
			}
			st.close()

			logger.Info("Database is up to date", zap.String("type", cfg.Database.Type))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to config.yaml")
	return cmd
}
