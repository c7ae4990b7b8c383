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

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Leganyst/charter-booking/internal/admission"
	"github.com/Leganyst/charter-booking/internal/blackout"
	"github.com/Leganyst/charter-booking/internal/config"
	"github.com/Leganyst/charter-booking/internal/db"
	"github.com/Leganyst/charter-booking/internal/dispatch"
	"github.com/Leganyst/charter-booking/internal/httpapi"
	"github.com/Leganyst/charter-booking/internal/lock"
	"github.com/Leganyst/charter-booking/internal/logger"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
	"github.com/Leganyst/charter-booking/internal/pricing"
	"github.com/Leganyst/charter-booking/internal/repository"
	"github.com/Leganyst/charter-booking/internal/service"
)

func main() {
	// 1. Конфиг: .env, config.yaml, окружение.
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("core stopped with error", zap.Error(err))
	}
	log.Info("core stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instance := instanceID()
	log = log.With(zap.String("instance", instance))

	// 2. Подключаемся к БД через GORM.
	gormDB, err := db.NewGormDB(&cfg.DBConfig)
	if err != nil {
		return err
	}

	// 3. Миграции моделей.
	if err := model.AutoMigrate(gormDB); err != nil {
		return err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 4. Redis нужен распределённым блокировкам, мосту уведомлений и очереди.
	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.NotifyRedisEnabled {
		rdb, err = db.NewRedisClient(ctx, &cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// 5. Репозитории (реализации на GORM).
	charterRepo := repository.NewGormCharterRepository(gormDB)
	slotRepo := repository.NewGormSlotRepository(gormDB,
		repository.WithDefaultCapacity(cfg.DefaultSlotCapacity),
		repository.WithMaxAdmitAttempts(cfg.AdmitMaxAttempts),
	)
	bookingRepo := repository.NewGormBookingRepository(gormDB)
	blackoutRepo := repository.NewGormBlackoutRepository(gormDB)
	ruleRepo := repository.NewGormSeasonalRuleRepository(gormDB)
	eventRepo := repository.NewGormEventRepository(gormDB)

	// 6. Блокировки по (чартер, дата).
	var locker lock.Locker
	if cfg.LockBackend == "redis" {
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL(), cfg.LockWait(), log)
	} else {
		locker = lock.NewMemoryLocker(cfg.LockWait())
	}

	// 7. Нотификатор и его подписчики.
	notifier := notify.New(log,
		notify.WithMaxAttempts(cfg.NotifyMaxAttempts),
		notify.WithRetryDelay(cfg.NotifyRetryDelay()),
	)
	if cfg.JournalEnabled {
		notifier.Subscribe("journal", notify.LocalOnly, notify.Journal(eventRepo))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NotifyRedisEnabled {
		bridge := notify.NewRedisBridge(rdb, cfg.NotifyRedisChannel, instance, notifier, log)
		notifier.Subscribe("redis-bridge", notify.LocalOnly, bridge.Forward)
		g.Go(func() error {
			if err := bridge.Listen(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.DispatchEnabled {
		queue := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queue.Close()

		fwd := dispatch.NewForwarder(queue, cfg.DispatchQueue, cfg.DispatchMaxRetry, instance, log)
		notifier.Subscribe("dispatch", notify.LocalOnly, fwd.Handle)
	}

	// 8. Доменные сервисы.
	resolver := pricing.NewResolver(ruleRepo)
	rules := pricing.NewRuleService(ruleRepo, notifier, log)
	registry := blackout.NewRegistry(blackoutRepo, bookingRepo, locker, notifier, cfg.MaxBlockDays, log)
	controller := admission.NewController(admission.Deps{
		Slots:     slotRepo,
		Ledger:    bookingRepo,
		Blackouts: registry,
		Pricer:    resolver,
		Charters:  charterRepo,
		Locker:    locker,
		Publisher: notifier,
	}, admission.Options{
		LedgerWriteAttempts: cfg.LedgerWriteAttempts,
		Location:            cfg.Location(),
	}, log)

	svc := service.NewAvailabilityService(controller, registry, rules, charterRepo, bookingRepo, eventRepo)

	// 9. gRPC-сервер.
	grpcServer, healthServer := service.NewGRPCServer(svc, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	// 10. HTTP-шлюз и WebSocket.
	origins := cfg.AllowedOrigins()
	hub := httpapi.NewHub(notifier, cfg.WebsocketBufferSize, cfg.WebsocketWriteWait(), httpapi.OriginChecker(origins), log)
	router := httpapi.NewRouter(httpapi.NewHandler(svc), hub, httpapi.RouterConfig{
		AllowedOrigins: origins,
		TrustedProxies: cfg.TrustedProxies(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("core gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("core HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 11. Грейсфул-шатдаун по сигналу или падению любого из серверов.
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()

		if err := notifier.Close(shutdownCtx); err != nil {
			log.Warn("notifier did not drain", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// instanceID различает инстансы в Redis-мосте и в TaskID очереди.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "core"
	}
	return host + "-" + uuid.NewString()[:8]
}
