package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/weiawesome/emergency-chat-relay/internal/cache"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	relaygrpc "github.com/weiawesome/emergency-chat-relay/internal/grpc"
	"github.com/weiawesome/emergency-chat-relay/internal/handler"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
	"github.com/weiawesome/emergency-chat-relay/internal/registry"
	"github.com/weiawesome/emergency-chat-relay/internal/service"
	"github.com/weiawesome/emergency-chat-relay/internal/store"
	pkglog "github.com/weiawesome/emergency-chat-relay/pkg/log"
	"github.com/weiawesome/emergency-chat-relay/pkg/pubsub"
)

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	logCfg := cfg.Log
	if strings.EqualFold(logCfg.Level, "debug") {
		logCfg.Pretty = true
	}
	pkglog.Init(logCfg)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Identifier generation
	seq, err := idgen.NewSnowflake(cfg.ID.Snowflake.MachineID, cfg.ID.Snowflake.Epoch)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sequencer")
	}
	ids, err := idgen.New(cfg.ID, seq)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}
	stamper := store.NewStamper(ids, seq)

	// Message store
	msgStore, err := store.New(ctx, cfg.Store, stamper)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open message store")
	}
	logger.Info().Str("driver", cfg.Store.Driver).Str("id_type", cfg.ID.Type).Msg("message store ready")

	// History cache
	historyCache, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Cache.Driver).Msg("failed to connect history cache")
	}

	// Persisted-message events
	publisher, err := pubsub.NewPublisher(cfg.Events)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to create event publisher")
	}

	reg := registry.New()
	historySvc := service.NewHistoryService(msgStore, historyCache, cfg.Cache.TTL)
	relaySvc := service.NewRelayService(reg, msgStore, historySvc, publisher, cfg.Relay.StoreTimeout)
	if err := relaySvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start relay service")
	}

	// Start gRPC health server
	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	grpcServer, err := relaygrpc.StartGRPCServer(grpcAddr, msgStore, cfg.GRPC.HealthCheckInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", grpcAddr).Msg("failed to start gRPC server")
	}

	// Setup Gin router
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewWSHandler(relaySvc, cfg.WebSocket).RegisterRoutes(r)
	handler.NewHTTPHandler(historySvc, relaySvc, msgStore).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("grpc_addr", grpcAddr).Msg("emergency-chat-relay starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down emergency-chat-relay")

	// Live connections get 1001 before the listener stops.
	if err := relaySvc.Stop(); err != nil {
		logger.Warn().Err(err).Msg("relay service stop failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	grpcServer.Stop()

	if err := historyCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close history cache")
	}
	if err := msgStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close message store")
	}

	logger.Info().Msg("emergency-chat-relay stopped")
}
