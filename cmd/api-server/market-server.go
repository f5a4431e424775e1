package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"stroymarket/db"
	"stroymarket/db/migrations"
	"stroymarket/internal/config"
	"stroymarket/internal/handlers"
	"stroymarket/internal/notify"
	"stroymarket/internal/parser"
	"stroymarket/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.S().Fatalf("cannot load config: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		zap.S().Fatalf("cannot init logger: %v", err)
	}
	defer zap.L().Sync()

	dbConn, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		zap.L().Fatal("cannot connect to DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := migrations.Run(cfg.DB.DSN, cfg.DB.MigrationsDir); err != nil {
		zap.L().Fatal("cannot run migrations", zap.Error(err))
	}

	store := db.NewStorage(dbConn)

	// Без ключа LLM парсер работает только по словарю.
	var enricher parser.Enricher
	if cfg.Anthropic.Key != "" {
		enricher = parser.NewAnthropicEnricher(cfg.Anthropic.Key, cfg.Anthropic.Model, cfg.Anthropic.RPS)
	}
	queryParser := parser.New(enricher, cfg.Anthropic.Timeout())

	// Без брокеров уведомления уходят в лог.
	var notifier notify.Notifier = notify.LogNotifier{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			zap.L().Fatal("cannot connect to kafka", zap.Error(err))
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}
	dispatcher := notify.NewDispatcher(notifier)

	h := handlers.NewHandler(store, queryParser, dispatcher)
	requestLimiter := ratelimit.New(cfg.RateLimit.Window(), cfg.RateLimit.Max)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-Id"},
	}))

	r.Get("/ping", h.PingHandler)
	r.Get("/search", h.SearchHandler)

	// заявки
	r.With(requestLimiter.Middleware).Post("/requests", h.CreateRequestHandler)
	r.Get("/requests", h.GetUserRequestsHandler)
	r.Put("/requests/{requestId}/status", h.UpdateRequestStatusHandler)
	r.Get("/requests/{requestId}/offers", h.GetRequestOffersHandler)

	// предложения
	r.Post("/offers", h.CreateOfferHandler)
	r.Put("/offers/{offerId}", h.UpdateOfferStatusHandler)

	// заказы и отзывы
	r.Patch("/orders/{orderId}", h.UpdateOrderStatusHandler)
	r.Post("/orders/{orderId}/reviews", h.CreateReviewHandler)
	r.Get("/companies/{companyId}/reviews", h.GetCompanyReviewsHandler)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		zap.L().Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zap.L().Error("shutdown failed", zap.Error(err))
	}
}
