package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallpaper-notify/internal/config"
	"wallpaper-notify/internal/handlers"
	"wallpaper-notify/internal/metrics"
	"wallpaper-notify/internal/middleware"
	"wallpaper-notify/internal/repository"
	"wallpaper-notify/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func Run() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logCloser, err := setupLogger(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup logger")
	}
	defer logCloser.Close()

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize repositories
	wallpaperRepo := repository.NewWallpaperRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize services
	httpClient := &http.Client{Timeout: cfg.Push.Timeout}

	tokenSigner := services.NewTokenSigner(
		services.ServiceAccount{
			ClientEmail: cfg.Firebase.ClientEmail,
			PrivateKey:  cfg.Firebase.PrivateKey,
		},
		cfg.Firebase.TokenURL,
		cfg.Firebase.Scope,
		httpClient,
	)

	var limiter *rate.Limiter
	if cfg.Push.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Push.RatePerSecond), 1)
	}
	dispatcher := services.NewPushDispatcher(cfg.Firebase.FCMEndpoint, cfg.Firebase.ProjectID, httpClient, limiter, m)

	var images services.ImageURLResolver
	if cfg.Storage.Bucket != "" {
		presigner, err := services.NewImagePresigner(
			context.Background(),
			cfg.Storage.Region,
			cfg.Storage.Bucket,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.Endpoint,
			cfg.Storage.PresignTTL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create image presigner")
		}
		images = presigner
	}

	wsHub := services.NewWSHub(cfg.Push.Timeout)
	authService := services.NewAuthService(cfg.Auth.JWTSecret)
	notificationService := services.NewNotificationService(
		wallpaperRepo,
		userRepo,
		tokenSigner,
		dispatcher,
		images,
		wsHub,
		m,
		cfg.Push.RequireRecipients,
	)

	// Initialize handlers
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, authService)

	// Setup router
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		MaxAge:         300,
	}))

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.RequestSize(1 << 20))
		r.Use(middleware.RequireRole(authService, cfg.Auth.ServiceRole))
		r.Post("/wallpaper-notifications", notificationHandler.SendWallpaperNotification)
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	// The write timeout leaves room for the token exchange plus a pair's pushes
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5*cfg.Push.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	wsHub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
