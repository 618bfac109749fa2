package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chathub-backend/internal/config"
	"chathub-backend/internal/database"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/handlers"
	"chathub-backend/internal/hub"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/keyValue"
	"chathub-backend/internal/ratelimit"
	"chathub-backend/internal/services"
	"chathub-backend/internal/snowflake"
	"chathub-backend/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	janitorInterval   = time.Minute
	tokenPurgeEvery   = time.Hour
	readHeaderTimeout = 10 * time.Second
)

func setupLogger(logFile string, level string) (*zap.SugaredLogger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stdout"}
	if logFile != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, logFile)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setupKeyValue(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (keyValue.Store, error) {
	if cfg.SelfContained || cfg.RedisAddress == "" {
		memory := keyValue.NewMemory(sugar)
		go memory.RunJanitor(ctx, janitorInterval)
		return memory, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return keyValue.NewRedis(rdb, sugar), nil
}

func setupBlobs(ctx context.Context, cfg *config.Config) (fileHandlers.BlobStore, string, error) {
	if cfg.UsesMinio() {
		blobs, err := fileHandlers.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL)
		return blobs, "", err
	}

	blobs, err := fileHandlers.NewLocalStore(cfg.UploadDir, cfg.UploadPublicURL)
	if err != nil {
		return nil, "", err
	}
	return blobs, blobs.Dir(), nil
}

func configPath() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return "config.json"
}

func run() error {
	fmt.Println("Reading config file...")
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Connecting to database...")
	db, err := database.Setup(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Setting up key-value store...")
	cache, err := setupKeyValue(ctx, cfg, sugar)
	if err != nil {
		return err
	}

	ids, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		return err
	}

	blobs, uploadDir, err := setupBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(cache, sugar, cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		return err
	}

	issuer := jwt.NewIssuer(cfg.JwtAccessSecret, cfg.JwtRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	st := store.New(db)

	chatHub := hub.New(sugar, st, issuer, hub.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthTimeout:    cfg.WsAuthTimeout,
		MaxMessageSize: cfg.WsMaxMessageSize,
		MessagesPerSec: cfg.WsMessagesPerSec,
		MessageBurst:   cfg.WsMessageBurst,
		SendBufferSize: cfg.WsSendBufferSize,
	})

	auth := services.NewAuthService(st, issuer, ids, sugar)
	router := handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Sugar:     sugar,
		Issuer:    issuer,
		Users:     st,
		Cache:     cache,
		Limiter:   limiter,
		Auth:      auth,
		Servers:   services.NewServerService(st, ids, chatHub.Dispatcher(), sugar),
		Channels:  services.NewChannelService(st, ids, chatHub.Dispatcher(), sugar),
		Messages:  services.NewMessageService(st, ids, blobs, chatHub.Dispatcher(), sugar),
		WebSocket: chatHub.HandleWebSocket,
		UploadDir: uploadDir,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	protocol := "http"
	if cfg.IsHttps() {
		protocol = "https"
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infof("Server is running on %s://%s", protocol, cfg.ListenAddress())
		var err error
		if cfg.IsHttps() {
			err = server.ListenAndServeTLS(cfg.TlsCert, cfg.TlsKey)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return chatHub.Run(gctx)
	})

	g.Go(func() error {
		return auth.RunTokenJanitor(gctx, tokenPurgeEvery)
	})

	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
