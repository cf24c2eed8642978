package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/auth"
	"studiobook/internal/broker"
	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/google"
	"studiobook/internal/live"
	"studiobook/internal/logging"
	"studiobook/internal/metrics"
	"studiobook/internal/notify"
	"studiobook/internal/repository"
	"studiobook/internal/seed"
	"studiobook/internal/service"
	"studiobook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sheetsCacheRefresh = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(&logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedFromEnv(ctx, db, &logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	state := initState(redisClient, &logger)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	}

	bus := events.NewEventBus(logging.Component(&logger, "events"))
	hub := initSubscribers(cfg, bus, &logger)
	if closer := initBroker(cfg, bus, &logger); closer != nil {
		defer func() { _ = closer.Close() }()
	}

	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, &logger)

	clock := service.NewClock(cfg.Booking.Location())
	svcLogger := logging.Component(&logger, "service")
	availability := service.NewAvailabilityService(db, cfg.Booking, clock, svcLogger)
	services := api.Services{
		Availability: availability,
		Reservations: service.NewReservationService(db, availability, bus, sheetsWorker, clock, svcLogger),
		Attendance:   service.NewAttendanceService(db, state, bus, sheetsWorker, cfg.Booking.AttendanceHistoryLimit, clock, svcLogger),
		Sessions: service.NewSessionService(db, state,
			auth.NewTokenManager(cfg.API.Auth.JWTSecret, cfg.API.Auth.TokenTTL), cfg.API.Auth, clock, svcLogger),
		Clients: service.NewClientService(db, clock, svcLogger),
		Now:     clock.CurrentTime,
	}
	if hub != nil {
		services.Live = hub
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, availability, clock.Today, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(cfg.API, services, cfg.Exports.Path, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// seedFromEnv applies the schedule file named by SEED_PATH, if any.
func seedFromEnv(ctx context.Context, db *database.DB, logger *zerolog.Logger) error {
	path := os.Getenv("SEED_PATH")
	if path == "" {
		return nil
	}
	schedule, err := seed.Load(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed")
		return err
	}
	res, err := seed.Apply(ctx, db, schedule, logging.Component(logger, "seed"))
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("apply seed")
		return err
	}
	logger.Info().
		Int("identities", res.Identities).
		Int("slots", res.Slots).
		Int("packages", res.Packages).
		Msg("seed applied")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initState prefers redis and falls back to process memory when it is absent
// or goes down.
func initState(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if redisClient == nil {
		logger.Warn().Msg("sessions and attendance drafts are kept in memory")
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(redisClient),
		memory,
		logging.Component(logger, "state"),
	)
}

// initSubscribers attaches the in-process listeners and returns the live hub
// when enabled.
func initSubscribers(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *live.Hub {
	if cfg.Telegram.Enabled {
		bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, staff notifications disabled")
		} else {
			notify.NewStaffNotifier(bot, cfg.Telegram.StaffChats, logging.Component(logger, "telegram")).Subscribe(bus)
			logger.Info().Int("chats", len(cfg.Telegram.StaffChats)).Msg("telegram notifications enabled")
		}
	}

	if !cfg.Live.Enabled {
		return nil
	}
	hub := live.NewHub(cfg.Live.AllowedOrigins, logging.Component(logger, "live"))
	hub.Subscribe(bus)
	return hub
}

func initBroker(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) io.Closer {
	if !cfg.Broker.Enabled {
		return nil
	}
	publisher, err := broker.Dial(cfg.Broker.URL, cfg.Broker.Queue, logging.Component(logger, "broker"))
	if err != nil {
		logger.Warn().Err(err).Msg("broker connection failed, events stay in process")
		return nil
	}
	publisher.Subscribe(bus)
	return publisher
}

// initSheetsWorker always returns a worker so sync tasks are recorded; it
// only runs when the spreadsheet is reachable.
func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	workerLogger := logging.Component(logger, "sheets-worker")
	retry := worker.PolicyFromConfig(cfg.Google.Sync)
	sheets := initGoogleSheets(ctx, cfg, logger)
	if sheets == nil {
		return worker.NewSheetsWorker(db, nil, nil, retry, workerLogger)
	}

	w := worker.NewSheetsWorker(db, sheets, redisClient, retry, workerLogger)
	go w.Start(ctx)
	go sheets.RefreshCache(ctx, sheetsCacheRefresh)
	return w
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationsSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.ReservationsSpreadSheetID,
		logging.Component(logger, "sheets"),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("spreadsheet not reachable, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Bool("grpc", cfg.API.GRPC.Enabled).
		Int("grpc_port", cfg.API.GRPC.Port).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
