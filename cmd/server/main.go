package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"profilebook/auth"
	grpcserver "profilebook/infrastructure/grpc/server"
	httpserver "profilebook/infrastructure/http/server"
	"profilebook/infrastructure/websocket"
	"profilebook/internal"
	"profilebook/moderation"
	"profilebook/observability"
	"profilebook/repositories"
	"profilebook/runtime"
	"profilebook/runtime/workers"
	"profilebook/services"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns their lifecycle, so deferred cleanups
// run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB rows, Bluge index)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	clock := repositories.NewClock()
	messageRepository, err := repositories.NewMessageRepository(db, logger, clock, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messageRepository.Close() }()
	notificationRepository, err := repositories.NewNotificationRepository(db, logger, clock)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = notificationRepository.Close() }()
	userRepository := repositories.NewUserRepository(db)
	messageIndex := repositories.NewMessageIndex(blugeWriter, logger)

	moderator, err := moderation.NewDefaultModerator(charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
	}

	// 3. Live delivery
	registry := runtime.NewRegistry()
	monitoring := observability.NewMonitoringManager(logger, registry.Count)
	dispatcher := runtime.NewDispatcher(logger, registry, monitoring, config.DeliveryTimeout)

	authService := services.NewAuthService(userRepository, auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration))
	messagingService := services.NewMessagingService(logger, messageRepository, userRepository,
		messageIndex, moderator, dispatcher, config.MaxContentLength)
	notificationService := services.NewNotificationService(logger, notificationRepository, userRepository,
		dispatcher, config.MaxContentLength)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errChan := make(chan error, 2)

	// 5. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewJanitorWorker(logger, registry, config.ConnectionIdleTimeout, config.JanitorInterval),
		workers.NewTelemetryWorker(logger, monitoring, config.MetricInterval),
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	if config.DebugPort != nil {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", *config.DebugPort, endpoint))
		debugServer := internal.StartDebugServer(db, *config.DebugPort, endpoint, internal.StoreMapper, monitoring.AsMap, logger)
		defer func() { _ = debugServer.Close() }()
	}

	// 6. HTTP API and hub
	hub := websocket.NewHub(logger, registry, authService, messagingService, notificationService, websocket.HubConfig{
		BufferSize:      config.ConnectionBufferSize,
		PingInterval:    config.PingInterval,
		IdleTimeout:     config.ConnectionIdleTimeout,
		DeliveryTimeout: config.DeliveryTimeout,
		AllowedOrigins:  config.Origins(),
	})
	handler := httpserver.NewHandler(logger, authService, messagingService, notificationService)
	router := httpserver.NewRouter(logger, handler, authService, hub, config.Origins())

	httpAddress := fmt.Sprintf("%s:%d", config.HTTPHost, config.HTTPPort)
	httpServer := &http.Server{
		Addr:              httpAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health for orchestrators
	grpcAddress := fmt.Sprintf("%s:%d", config.HTTPHost, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	health := grpcserver.NewHealthServer(logger)
	opsServer := grpcserver.NewOpsServer(logger, health)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress)
		if err := opsServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	health.MarkServing()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		stop()
		<-supervisorDone
		return exitRuntime, err
	}

	// 9. Graceful shutdown: stop accepting, drop live connections, drain workers
	logger.Info("Shutting down gracefully...")
	health.MarkDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	for _, conn := range registry.Snapshot() {
		registry.Unregister(conn)
		_ = conn.Close()
	}
	opsServer.GracefulStop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
