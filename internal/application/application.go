package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/psds-microservice/support-ticket-service/internal/classifier"
	"github.com/psds-microservice/support-ticket-service/internal/clock"
	"github.com/psds-microservice/support-ticket-service/internal/config"
	"github.com/psds-microservice/support-ticket-service/internal/database"
	"github.com/psds-microservice/support-ticket-service/internal/events"
	"github.com/psds-microservice/support-ticket-service/internal/handler"
	"github.com/psds-microservice/support-ticket-service/internal/router"
	"github.com/psds-microservice/support-ticket-service/internal/service"
)

// API приложение: HTTP-сервер (режим api).
type API struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *redis.Client
	notifier *events.Notifier
	httpSrv  *http.Server
}

// NewAPI подключает базу, применяет миграции и собирает HTTP-обработчики.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	ticketSvc := service.NewTicketService(db, clock.Real())
	cls := classifier.New(ClassifierConfig(cfg))
	if !cls.Enabled() {
		slog.Warn("classifier: LLM_API_KEY not set, /api/tickets/classify will return null suggestions")
	}
	notifier := events.NewNotifier(events.Open(EventsConfig(cfg)), clock.Real())
	rdb := openRedis(cfg)

	h := router.New(router.Deps{
		Tickets:        handler.NewTicketHandler(ticketSvc, notifier),
		Classify:       handler.NewClassifyHandler(cls),
		Health:         handler.NewHealthHandler(ticketSvc),
		Redis:          rdb,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// классификация может занять до LLM_TIMEOUT
		WriteTimeout: cfg.LLM.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		db:       db,
		redis:    rdb,
		notifier: notifier,
		httpSrv:  httpSrv,
	}, nil
}

func (a *API) Handler() http.Handler {
	return a.httpSrv.Handler
}

// Run запускает HTTP-сервер и блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	slog.Info("HTTP server listening", "addr", a.httpSrv.Addr)
	slog.Info("endpoints",
		"api", base+"/api/tickets",
		"swagger", base+"/swagger",
		"health", base+"/health",
		"ready", base+"/ready",
		"metrics", base+router.PathMetrics)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	a.close()
	return runErr
}

func (a *API) close() {
	if err := a.notifier.Close(); err != nil {
		slog.Warn("events: close", "error", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func ClassifierConfig(cfg *config.Config) classifier.Config {
	return classifier.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	}
}

func EventsConfig(cfg *config.Config) events.Config {
	return events.Config{
		KafkaBrokers:     cfg.Events.KafkaBrokers,
		KafkaTopic:       cfg.Events.KafkaTopicTicket,
		RabbitMQURL:      cfg.Events.RabbitMQURL,
		RabbitMQExchange: cfg.Events.RabbitMQExchange,
		WebhookURL:       cfg.Events.WebhookURL,
	}
}

// openRedis returns nil when REDIS_ADDR is empty or the server does not answer;
// idempotency keys are then ignored.
func openRedis(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis: unavailable, idempotency disabled", "addr", cfg.Redis.Addr, "error", err)
		_ = rdb.Close()
		return nil
	}
	slog.Info("redis: connected, idempotency enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.IdempotencyTTL)
	return rdb
}
