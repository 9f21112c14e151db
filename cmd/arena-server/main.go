package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena/internal/admission"
	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/common/storage"
	"arena/internal/contest"
	"arena/internal/controller"
	"arena/internal/realtime"
	"arena/internal/sandbox"
	"arena/internal/service"
	"arena/internal/store"
	"arena/internal/taskbank"
	"arena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/arena_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQL(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	var contestStore store.Store = store.NewMySQLStore(mysqlDB)
	if appCfg.Redis != nil {
		redisCache, err := cache.NewRedisCache(appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		contestStore = store.NewCachedStore(contestStore, redisCache)
	}

	var sources *store.SourceArchive
	if appCfg.MinIO != nil {
		objStorage, err := storage.NewMinIOStorage(*appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		sources = store.NewSourceArchive(objStorage, appCfg.MinIO.Bucket)
	}

	var producer mq.Producer
	var eventTopic string
	if appCfg.Kafka != nil {
		kafkaProducer, err := mq.NewKafkaProducer(appCfg.Kafka.KafkaConfig)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = kafkaProducer.Close()
		}()
		producer = kafkaProducer
		eventTopic = appCfg.Kafka.EventTopic
	}

	runner, err := sandbox.NewDockerRunner(appCfg.Docker)
	if err != nil {
		logger.Error(context.Background(), "init docker runner failed", zap.Error(err))
		return
	}

	hub := realtime.NewHub()
	svc := service.NewContestService(service.Deps{
		Registry:  contest.NewRegistry(contestStore),
		Store:     contestStore,
		Sources:   sources,
		Bank:      taskbank.NewMySQLProvider(mysqlDB),
		Runner:    runner,
		Admission: admission.NewController(appCfg.Judge.Concurrency),
		Hub:       hub,
		Producer:  producer,
		Topic:     eventTopic,
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go svc.RunSweeper(sweepCtx, appCfg.Judge.SweepInterval)

	httpServer := buildHTTPServer(appCfg.Server, svc, hub)
	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "arena server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, svc *service.ContestService, hub *realtime.Hub) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	prom := ginprometheus.NewPrometheus("arena")
	prom.Use(router)

	controller.RegisterRoutes(router,
		controller.NewContestController(svc),
		controller.NewWSController(svc, hub),
		cfg.AdminToken)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
