package bootstrap

import (
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

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/accesscloud"
	cacheadapter "github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/events"
	httpadapter "github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/http"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/postgres"
	webhookadapter "github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/adapters/webhook"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/application"
)

// Runtime wires the three deployables of M62 from one configuration: the
// api surface, the vendor poller, and the stream worker. All of them share
// the same construction so partial configurations fail in one place.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	poller     *accesscloud.Poller
	relay      *application.Relay
	consumer   *eventadapter.RedisStreamConsumer
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping m62 access control bridge", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	publisher := eventadapter.NewRedisStreamPublisher(redisClient, cfg.StreamName, logger)
	relay := application.NewRelay(repos.Messages, publisher, logger)

	// The vendor side only exists when credentials are present. The api
	// runtime stays useful without them; the poller refuses to run.
	var (
		tokens       *accesscloud.TokenManager
		vendorClient *accesscloud.Client
		poller       *accesscloud.Poller
	)
	if cfg.VendorConfigured() {
		credStore := cacheadapter.NewRedisCredentialStore(redisClient, cfg.TokenKeyPrefix, cfg.VendorAppKey)
		refreshLock := cacheadapter.NewRedisRefreshLock(redisClient, cfg.TokenKeyPrefix, cfg.VendorAppKey, cfg.TokenLockTTL, logger)
		vendorHTTP := accesscloud.NewHTTPClient(cfg.VendorRequestTimeout, cfg.VendorConnectTimeout)
		tokens = accesscloud.NewTokenManager(accesscloud.TokenManagerConfig{
			BaseURL:      cfg.VendorBaseURL,
			AppKey:       cfg.VendorAppKey,
			SecretKey:    cfg.VendorSecretKey,
			ExpiryMargin: cfg.TokenExpiryMargin,
			LocalTTL:     cfg.TokenLocalTTL,
			LockWait:     cfg.TokenLockWait,
		}, vendorHTTP, credStore, refreshLock, logger)
		vendorClient = accesscloud.NewClient(accesscloud.ClientConfig{
			BaseURL:      cfg.VendorBaseURL,
			MaxRetries:   cfg.VendorMaxRetries,
			RetryBackoff: cfg.VendorRetryBackoff,
		}, vendorHTTP, tokens, logger)
		poller = accesscloud.NewPoller(vendorClient, logger)
	} else {
		logger.Warn("vendor credentials not configured, token and polling surfaces disabled")
	}

	// The worker side only exists when a webhook target is present.
	var consumer *eventadapter.RedisStreamConsumer
	if cfg.WebhookConfigured() {
		hook := webhookadapter.NewClient(webhookadapter.Config{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Timeout: cfg.WebhookTimeout,
		}, logger)
		delivery := application.NewDelivery(repos.Messages, hook, logger)
		consumer = eventadapter.NewRedisStreamConsumer(redisClient, eventadapter.ConsumerConfig{
			Stream:     cfg.StreamName,
			Group:      cfg.StreamGroup,
			Consumer:   cfg.StreamConsumerName,
			Block:      cfg.StreamBlock,
			MaxRetries: cfg.StreamMaxRetries,
		}, delivery.Process, logger)
	} else {
		logger.Warn("webhook not configured, worker runtime disabled")
	}

	deps := application.Dependencies{
		Messages:         repos.Messages,
		Publisher:        publisher,
		VendorConfigured: cfg.VendorConfigured(),
	}
	if tokens != nil {
		deps.Tokens = tokens
	}
	svc := application.NewService(deps)

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		poller:     poller,
		relay:      relay,
		consumer:   consumer,
		cleanupFn: func(ctx context.Context) {
			if vendorClient != nil {
				vendorClient.Close()
			}
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves the operational HTTP surface and the gRPC health endpoint
// until a shutdown signal or server failure.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunPoller subscribes to the vendor queue and relays batches onto the
// stream until a shutdown signal. Stop latency is bounded by the poll
// interval plus the outstanding vendor call.
func (r *Runtime) RunPoller(ctx context.Context) error {
	if r.poller == nil {
		return fmt.Errorf("poller runtime requires VENDOR_BASE_URL, VENDOR_APP_KEY and VENDOR_SECRET_KEY")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	if err := r.poller.Start(ctx, r.relay.HandleBatch, accesscloud.StartOptions{
		MsgTypes:    r.cfg.PollMsgTypes,
		Interval:    r.cfg.PollInterval,
		AutoConfirm: r.cfg.PollAutoConfirm,
	}); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.grpcServer.GracefulStop()
		r.cleanupFn(shutdownCtx)
		return fmt.Errorf("start poller: %w", err)
	}

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.poller.Stop(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker consumes the stream and forwards attendance events until a
// shutdown signal.
func (r *Runtime) RunWorker(ctx context.Context) error {
	if r.consumer == nil {
		return fmt.Errorf("worker runtime requires WEBHOOK_URL")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			r.logger.Error("grpc server failure", "error", err)
		}
	}()

	runErr := r.consumer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
