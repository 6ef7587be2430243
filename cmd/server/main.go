package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"booking-service/internal/app"
	"booking-service/internal/booking"
	"booking-service/internal/config"
	"booking-service/internal/logger"
	"booking-service/internal/notify"
	"booking-service/internal/server"
	"booking-service/internal/slots"
	"booking-service/internal/store"
	"booking-service/internal/timeutil"
	"booking-service/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "listen address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.Close()

	owner, err := timeutil.LoadZone(cfg.OwnerTimezone)
	if err != nil {
		lg.Fatal("invalid owner timezone", zap.Error(err))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(lg)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		lg.Info("publishing notifications to redis", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
		notifier = notify.NewRedisPublisher(rdb, cfg.Redis.Channel)
	}

	engine := slots.New(st, st, st, owner, lg, slots.WithStep(cfg.Slots.Step))
	var tokenOpts []token.Option
	if cfg.Tokens.Issuer != "" {
		tokenOpts = append(tokenOpts, token.WithIssuer(cfg.Tokens.Issuer))
	}
	codec, err := token.NewCodec(cfg.Tokens.Secret, cfg.Tokens.TTL, tokenOpts...)
	if err != nil {
		lg.Fatal("token codec", zap.Error(err))
	}
	svc := booking.NewService(st, engine, codec, notifier, lg)

	if cfg.Reminders.Enabled {
		job := notify.NewReminderJob(st, notifier, cfg.Reminders.Lead, lg)
		sched, err := job.Schedule(cfg.Reminders.Cron)
		if err != nil {
			lg.Fatal("reminder scheduler", zap.Error(err))
		}
		defer sched.Stop()
		lg.Info("reminders scheduled", zap.String("cron", cfg.Reminders.Cron), zap.Duration("lead", cfg.Reminders.Lead))
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := app.New(cfg, st, engine, svc, lg).Router()

	srv := server.New(cfg.Listen, router, cfg.CORS.AllowedOrigins)
	if err := server.Run(ctx, srv, lg); err != nil {
		lg.Error("http server stopped", zap.Error(err))
		return
	}
	lg.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		lg.Warn("using in-memory store; bookings are lost on restart")
		return store.NewMemory(), nil
	default:
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
}
