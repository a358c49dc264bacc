package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collinglass/blarg/internal/config"
	"github.com/collinglass/blarg/internal/feed"
	"github.com/collinglass/blarg/internal/handler"
	"github.com/collinglass/blarg/internal/history"
	"github.com/collinglass/blarg/internal/identity"
	"github.com/collinglass/blarg/internal/presence"
	"github.com/collinglass/blarg/internal/repository"
	"github.com/collinglass/blarg/internal/stream"
	"github.com/collinglass/blarg/pkg/database"
	"github.com/collinglass/blarg/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting feed service")

	// Persistence
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open database")
	}
	repo, err := repository.NewGormRepository(db)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	collab := feed.Collaborators{
		Archiver: repository.NewArchiver(repo, repo),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis presence registry
	if cfg.Redis.Enabled {
		pres, err := presence.NewRedisPresence(cfg.Redis, cfg.Server.AdvertiseAddress)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize redis presence")
		}
		defer pres.Close()
		pres.StartHeartbeat(ctx)
		collab.Presence = pres
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// Kafka event mirror
	if cfg.Kafka.Enabled {
		producer, err := stream.NewConfluentProducer(cfg.Kafka)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		defer producer.Close()
		collab.Mirror = producer
		l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	// Core
	dispatcher := feed.NewDispatcher(cfg.Feed, collab)
	provider := identity.NewProvider(cfg.Identity)
	histSvc := history.NewService(repo, repo)

	// HTTP surface
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())

	handler.NewWSHandler(dispatcher, provider, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(dispatcher, histSvc).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("feed service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down feed service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("feed service stopped")
}
