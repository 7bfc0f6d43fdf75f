package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/psds-microservice/support-ticket-service/internal/application"
	"github.com/psds-microservice/support-ticket-service/internal/config"
	"github.com/psds-microservice/support-ticket-service/internal/logging"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API (applies migrations first)",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if os.Getenv("GIN_MODE") == "" && cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := application.NewAPI(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return app.Run(ctx)
}

// loadConfig читает конфигурацию и настраивает slog; общий для всех команд.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
