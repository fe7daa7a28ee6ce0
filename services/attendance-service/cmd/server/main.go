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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"google.golang.org/grpc"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/config"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/handler"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/notifier"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/ratelimit"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/session"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/usecase"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
	"github.com/vasapolrittideah/school-attendance-api/shared/discovery"
	"github.com/vasapolrittideah/school-attendance-api/shared/logging"
	"github.com/vasapolrittideah/school-attendance-api/shared/mailer"
	"github.com/vasapolrittideah/school-attendance-api/shared/observability"
	"github.com/vasapolrittideah/school-attendance-api/shared/provider"
	"github.com/vasapolrittideah/school-attendance-api/shared/utilities"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.NewLogger("attendance-service", os.Getenv("ENV") == "production", "info")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.NewLogger(cfg.ServiceName, cfg.IsProduction(), cfg.LogLevel)

	flushSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.ServiceName)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize sentry")
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load time zone")
	}

	userRepo, recordRepo, healthCheck, closeStore := newStore(ctx, cfg, logger)
	defer closeStore()

	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Audience, cfg.Token.Issuer)
	codec := session.NewCodec(jwtAuth, cfg.Token.Secret, cfg.Token.TTL)

	p := policy.New(policy.OwnershipMode(cfg.OwnershipMode), logger)
	if p.Mode() == policy.OwnershipPassthrough {
		logger.Warn().Msg("attendance ownership checks are in passthrough mode")
	}

	mailCfg, err := mailer.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load mailer configuration")
	}

	var sender notifier.Sender
	if mailCfg.Enabled() {
		m, err := mailer.New(mailCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create mailer")
		}
		sender = m
	} else {
		logger.Info().Msg("SMTP_HOST not set, attendance notifications disabled")
	}
	attendanceNotifier := notifier.NewAttendanceNotifier(userRepo, sender, logger)

	var google usecase.GoogleTokenVerifier
	if cfg.GoogleClientID != "" {
		google = provider.NewGoogleOAuthProvider(cfg.GoogleClientID)
	}

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse trusted proxies")
	}

	loginLimiter, scanLimiter, closeRedis := newLimiters(ctx, cfg, logger)
	defer closeRedis()

	server := handler.NewServer(handler.ServerParams{
		Auth:               usecase.NewAuthUsecase(userRepo, codec, google, logger),
		Users:              usecase.NewUserUsecase(userRepo, p, logger),
		Attendance:         usecase.NewAttendanceUsecase(recordRepo, p, attendanceNotifier, location, time.Now, logger),
		Policy:             p,
		LoginLimiter:       loginLimiter,
		ScanLimiter:        scanLimiter,
		HealthCheck:        healthCheck,
		TrustedProxies:     trustedProxies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		GoogleSignIn:       google != nil,
		Logger:             logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := utilities.RegisterHealthServer(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen for gRPC")
	}

	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server started")
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	deregister := registerWithConsul(cfg, logger)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	deregister()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down HTTP server")
	}
	grpcServer.GracefulStop()
	attendanceNotifier.Wait()

	logger.Info().Msg("server stopped")
}

func newStore(
	ctx context.Context,
	cfg *config.AttendanceServiceConfig,
	logger *zerolog.Logger,
) (repository.UserRepository, repository.AttendanceRepository, func(context.Context) error, func()) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return repository.NewUserMemoryRepository(), repository.NewAttendanceMemoryRepository(), nil, func() {}
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Store.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping MongoDB")
	}

	db := client.Database(cfg.Store.Database)
	healthCheck := func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
	closeStore := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect from MongoDB")
		}
	}

	logger.Info().Str("database", cfg.Store.Database).Msg("connected to MongoDB")

	return repository.NewUserMongoRepository(ctx, logger, db),
		repository.NewAttendanceMongoRepository(ctx, logger, db),
		healthCheck,
		closeStore
}

func newLimiters(
	ctx context.Context,
	cfg *config.AttendanceServiceConfig,
	logger *zerolog.Logger,
) (*ratelimit.Limiter, *ratelimit.Limiter, func()) {
	if cfg.RateLimit.RedisAddr == "" {
		logger.Info().Msg("REDIS_ADDR not set, rate limiting disabled")
		return nil, nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, rate limiter will allow requests until it recovers")
	}

	login := ratelimit.NewLimiter(rdb, "login", cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
	scan := ratelimit.NewLimiter(rdb, "scan", cfg.RateLimit.ScanLimit, cfg.RateLimit.Window)

	return login, scan, func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

func registerWithConsul(cfg *config.AttendanceServiceConfig, logger *zerolog.Logger) func() {
	if cfg.ConsulAddr == "" {
		return func() {}
	}

	registrar, err := discovery.NewConsulRegistrar(cfg.ConsulAddr, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create consul client")
		return func() {}
	}

	hostname, _ := os.Hostname()
	grpcAddr := cfg.GRPCAddr
	if host, port, err := net.SplitHostPort(grpcAddr); err == nil && host == "" {
		grpcAddr = net.JoinHostPort(hostname, port)
	}

	deregister, err := registrar.Register(discovery.Registration{
		ID:       cfg.ServiceName + "-" + hostname,
		Name:     cfg.ServiceName,
		GRPCAddr: grpcAddr,
		Tags:     []string{"http", "grpc"},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to register with consul")
		return func() {}
	}

	return deregister
}
