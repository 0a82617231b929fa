package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settlement-service/config"
	"settlement-service/consumers"
	"settlement-service/controllers"
	"settlement-service/database"
	"settlement-service/locks"
	"settlement-service/middlewares"
	"settlement-service/rabbitmq"
	"settlement-service/realtime"
	"settlement-service/services"
	"settlement-service/store"
)

func main() {
	logger := config.GetLogger()
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage
	var st store.Store
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		st = store.NewMemoryStore()
	default:
		if err := database.InitDB(cfg); err != nil {
			logger.WithError(err).Fatal("database initialization failed")
		}
		defer database.CloseDB()
		st = store.NewMySQLStore(database.DB)
	}

	// per-table locks are shared across instances when redis is configured
	var locker locks.Locker = locks.NewLocalLocker()
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.WithError(err).Fatal("redis initialization failed")
	}
	if rdb != nil {
		defer database.CloseRedis()
		locker = locks.NewRedisLocker(rdb, cfg.LockTTL)
	}

	hub := realtime.NewHub(cfg.SubscriberBuffer)
	var (
		relay realtime.Relay
		opts  []services.Option
		rmq   *rabbitmq.RabbitMQ
	)
	if cfg.RabbitMQURL != "" {
		rmq, err = rabbitmq.NewRabbitMQ(cfg)
		if err != nil {
			logger.WithError(err).Fatal("rabbitmq initialization failed")
		}
		defer rmq.Close()
		if err := rmq.SetupQueues(); err != nil {
			logger.WithError(err).Fatal("failed to setup rabbitmq queues")
		}
		relay = rmq
		opts = append(opts, services.WithRetrier(rmq))
	} else {
		logger.Warn("RABBITMQ_URL not set, events stay on this instance and table resets are not retried")
	}

	broadcaster := realtime.NewBroadcaster(hub, relay)
	svc := services.New(st, locker, broadcaster, opts...)

	if rmq != nil {
		if err := consumers.StartEventConsumer(ctx, rmq.Channel, rmq.EventQueue, broadcaster); err != nil {
			logger.WithError(err).Fatal("failed to start event consumer")
		}
		handler := &consumers.TableResetHandler{Releaser: svc, Scheduler: rmq, MaxAttempts: cfg.TableResetMaxAttempts}
		if err := consumers.StartTableResetConsumer(ctx, rmq.Channel, cfg, handler); err != nil {
			logger.WithError(err).Fatal("failed to start table reset consumer")
		}
	}

	controllers.SetService(svc)
	controllers.SetHub(hub)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AddAllowHeaders("Authorization", "Idempotency-Key")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	controllers.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}
	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("settlement service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "server shutdown", nil, err)
	}
}
