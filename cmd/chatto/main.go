package main

import (
	"chatto/auth"
	"chatto/infrastructure/grpc/server"
	"chatto/infrastructure/rest"
	"chatto/infrastructure/ws"
	"chatto/internal"
	"chatto/moderation"
	"chatto/observability"
	"chatto/repositories"
	"chatto/runtime"
	"chatto/runtime/workers"
	"chatto/services"
	"chatto/session"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
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
		fmt.Fprintf(os.Stderr, "Chatto terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the server lifecycle, so that deferred
// cleanups run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB, Bluge, sessions)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	ids := repositories.NewIDGenerator(db)
	defer func() { _ = ids.Release() }()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	probes := map[string]server.Probe{
		"badger": func(context.Context) error {
			if db.IsClosed() {
				return errors.New("badger is closed")
			}
			return nil
		},
	}

	var sessions session.Store
	switch internal.SessionBackend(config.SessionBackend) {
	case internal.SessionRedis:
		client, err := session.NewRedisClient(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis connection failed: %w", err)
		}
		defer func() { _ = client.Close() }()
		sessions = session.NewRedisStore(client)
		probes["redis"] = redisProbe(client)
	default:
		sessions = session.NewBadgerStore(db)
	}

	// 3. Moderation
	var moderator services.ContentModerator = moderation.Passthrough{}
	if config.ModerationEnabled {
		dictionary, err := moderation.LoadDictionary(moderation.Censored, "censored")
		if err != nil {
			return exitConfig, fmt.Errorf("failed to load censored words: %w", err)
		}
		m, err := moderation.NewModerator(dictionary.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("failed to build moderator: %w", err)
		}
		logger.Info("Moderation enabled", "words", len(dictionary.Words), "languages", dictionary.Languages)
		moderator = m
	}

	// 4. Realtime core & workers
	monitor := observability.NewMonitoringManager(logger)
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(registry, monitor, logger)
	typing := runtime.NewTypingTracker(config.TypingTimeout)

	userRepository := repositories.NewUserRepository(db, ids)
	conversationRepository := repositories.NewConversationRepository(db, ids)
	messageRepository := repositories.NewMessageRepository(db, ids, logger)
	messageIndex := repositories.NewMessageIndex(blugeWriter, logger)
	synchronizer := runtime.NewSynchronizer(registry, conversationRepository, logger)

	indexWorker := workers.NewIndexWorker(logger, messageIndex, monitor, config.IndexBufferSize, config.IndexBatchSize)
	healthServer := server.NewHealthServer(logger, config.HealthInterval, probes)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(
		indexWorker,
		workers.NewTypingWorker(logger, typing, dispatcher, config.TypingTimeout/2),
		workers.NewStatsWorker(logger, registry, monitor, config.MetricInterval),
		healthServer,
	)

	// 5. Services
	issuer, err := auth.NewTokenIssuer(config.JWTSecret)
	if err != nil {
		return exitConfig, err
	}
	authService := services.NewAuthService(logger, userRepository, sessions, issuer, auth.DefaultPasswordParams, config.AuthTokenDuration)
	chatService := services.NewChatService(
		logger,
		userRepository,
		conversationRepository,
		messageRepository,
		messageIndex,
		indexWorker,
		dispatcher,
		moderator,
		services.ChatConfig{
			DefaultPageSize:  config.DefaultPageSize,
			MaxPageSize:      config.MaxPageSize,
			MaxContentLength: config.MaxContentLength,
			SearchLimit:      config.SearchLimit,
			UserSearchLimit:  config.UserSearchLimit,
		},
	)

	// 6. Transports
	socket := ws.NewHandler(logger, authService, chatService, registry, synchronizer, dispatcher, typing, ws.Config{
		BufferSize:     config.ConnectionBufferSize,
		WriteTimeout:   config.WSWriteTimeout,
		PingInterval:   config.WSPingInterval,
		OriginPatterns: config.OriginPatterns(),
	})
	if !logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr: config.Address(),
		Handler: rest.NewRouter(rest.RouterDeps{
			Log:         logger,
			AuthService: authService,
			ChatService: chatService,
			Monitor:     monitor,
			Socket:      socket,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(logger)))
	healthServer.Register(grpcServer)

	errChan := make(chan error, 2)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		logger.Info("Starting supervisor...")
		supervisor.Run(ctx)
	}()
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting gRPC health server", "address", healthAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown. Hijacked sockets are not tracked by the HTTP server.
	logger.Info("Shutting down gracefully...")
	logger.Info("Closing live connections", "count", registry.CloseAll())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	supervisor.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

func redisProbe(client *redis.Client) server.Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// RecordMapper renders chatto records in the badger inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Type, row.Detail = repositories.Describe(key, val)
	return row
}
