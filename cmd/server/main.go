// Command barforge-server starts the module registry gRPC API and the OAuth login endpoints.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jtaw5649/barforge-registry/internal/auth/provider"
	ghprovider "github.com/jtaw5649/barforge-registry/internal/auth/provider/github"
	oidcprovider "github.com/jtaw5649/barforge-registry/internal/auth/provider/oidc"
	"github.com/jtaw5649/barforge-registry/internal/config"
	pkgcrypto "github.com/jtaw5649/barforge-registry/internal/crypto"
	"github.com/jtaw5649/barforge-registry/internal/httpapi"
	"github.com/jtaw5649/barforge-registry/internal/limiter"
	"github.com/jtaw5649/barforge-registry/internal/migrate"
	"github.com/jtaw5649/barforge-registry/internal/repository/postgres"
	grpcserver "github.com/jtaw5649/barforge-registry/internal/server/grpc"
	"github.com/jtaw5649/barforge-registry/internal/service"
	"github.com/jtaw5649/barforge-registry/internal/session"
	"github.com/jtaw5649/barforge-registry/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves gRPC and HTTP until signalled.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatal("load .env", zap.Error(err))
	}
	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	submissionRepo := postgres.NewSubmissionRepo(db)
	moduleRepo := postgres.NewModuleRepo(db)
	reviewRepo := postgres.NewReviewRepo(db)
	catalogRepo := postgres.NewCatalogRepo(db)

	submitLim := limiter.NewPG(pool, cfg.SubmitWindow, cfg.SubmitMax)
	loginLim := limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMax)

	hasher, err := pkgcrypto.NewHasher([]byte(cfg.SessionKey))
	if err != nil {
		logger.Fatal("session hasher", zap.Error(err))
	}

	var cache service.SessionCache
	if cfg.RedisAddr != "" {
		rdb, err := session.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		cache = session.NewRedisCache(rdb, cfg.CacheTTL)
		logger.Info("session cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	var presign service.Presigner
	if cfg.S3Bucket != "" {
		p, err := storage.NewS3Presigner(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
			Expiry:    cfg.PresignTTL,
		})
		if err != nil {
			logger.Fatal("s3 presigner", zap.Error(err))
		}
		presign = p
	}

	// Services
	identitySvc := service.NewIdentityService(userRepo, sessionRepo, hasher, cfg.SessionTTL, cache, logger.Named("identity"))
	svcs := grpcserver.Services{
		Identity:   identitySvc,
		Moderation: service.NewModerationService(submissionRepo, submitLim, logger.Named("moderation")),
		Ledger:     service.NewLedgerService(moduleRepo, presign, logger.Named("ledger")),
		Reviews:    service.NewReviewService(reviewRepo, logger.Named("reviews")),
		Curation:   service.NewCurationService(catalogRepo, logger.Named("curation")),
	}

	if n, err := identitySvc.PurgeExpiredSessions(ctx); err != nil {
		logger.Warn("purge expired sessions", zap.Error(err))
	} else {
		logger.Info("expired sessions purged at startup", zap.Int64("count", n))
	}

	// Identity providers
	var providers []provider.OAuthProvider
	if cfg.GitHubClientID != "" {
		gh, err := ghprovider.New(ghprovider.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		})
		if err != nil {
			logger.Fatal("github provider", zap.Error(err))
		}
		providers = append(providers, gh)
	}
	if cfg.OIDCIssuer != "" {
		op, err := oidcprovider.New(ctx, oidcprovider.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			logger.Fatal("oidc provider", zap.Error(err))
		}
		providers = append(providers, op)
	}
	registry := provider.NewRegistry(providers...)
	if len(registry.Names()) == 0 {
		logger.Warn("no identity providers configured; logins are disabled")
	}

	h := httpapi.NewHandler(registry, identitySvc, httpapi.Options{
		StateKey: []byte(cfg.StateKey),
		Secure:   !cfg.Dev,
		Limiter:  loginLim,
		DB:       pool,
	}, logger.Named("http"))
	if err := h.Validate(); err != nil {
		logger.Fatal("http handler", zap.Error(err))
	}

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.AuthUnary(identitySvc),
			grpcserver.LoggingUnary(logger),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	grpcserver.RegisterRegistryServer(s, grpcserver.New(svcs, logger.Named("grpc")))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	// graceful shutdown
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.Stop()
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
