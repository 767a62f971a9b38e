package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/api"
	"github.com/agriclip/chat-service/internal/auth"
	"github.com/agriclip/chat-service/internal/classifier"
	"github.com/agriclip/chat-service/internal/config"
	"github.com/agriclip/chat-service/internal/events"
	"github.com/agriclip/chat-service/internal/repository"
	"github.com/agriclip/chat-service/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	var store repository.MessageStore
	var uploads repository.UploadRegistry
	if cfg.Mongo.URI != "" {
		mc, err := repository.NewMongoClient(cfg.Mongo.URI)
		if err != nil {
			logger.Fatalw("mongo init", "error", err)
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()
		db := mc.Database(cfg.Mongo.DB)
		store = repository.NewMongoStore(db.Collection("messages"))
		uploads = repository.NewMongoUploads(db.Collection("uploads"))
	} else {
		logger.Warn("mongo not configured, using in-memory store")
		store = repository.NewMemoryStore()
		uploads = repository.NewMemoryUploads()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	var pub *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer pub.Close()
	}

	backend := newBackend(cfg, logger)
	tracker := classifier.NewTracker(backend, cfg.Classifier.JobRetention(), logger)

	svc := service.NewChatService(store, uploads, tracker, service.NewTemplatedResponder(), pub, logger)
	svc.SetReplyDelay(cfg.Classifier.ReplyDelay())

	validator, err := newValidator(cfg)
	if err != nil {
		logger.Fatalw("jwt init", "error", err)
	}

	app := api.NewServer(cfg, svc, uploads, validator, rdb, logger)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			logger.Fatalw("server listen", "error", err)
		}
	}()
	logger.Infow("chat-service started", "port", cfg.App.Port, "env", cfg.App.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	logger.Info("chat-service stopped")
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if cfg.App.Development() {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func newBackend(cfg *config.Config, logger *zap.SugaredLogger) classifier.Backend {
	if cfg.Classifier.BaseURL != "" {
		return classifier.NewHTTPBackend(classifier.HTTPBackendConfig{
			BaseURL:         cfg.Classifier.BaseURL,
			Timeout:         cfg.Classifier.Timeout(),
			RetryMaxElapsed: cfg.Classifier.RetryMaxElapsed(),
		})
	}

	logger.Warn("model backend not configured, using fake classifier")
	diseases := []classifier.DiseaseProfile(nil)
	if cfg.Classifier.DiseaseTable != "" {
		d, err := classifier.LoadDiseaseTable(cfg.Classifier.DiseaseTable)
		if err != nil {
			logger.Warnw("disease table load failed", "path", cfg.Classifier.DiseaseTable, "error", err)
		} else {
			diseases = d
		}
	}
	return classifier.NewFakeBackend(diseases, time.Second)
}

func newValidator(cfg *config.Config) (*auth.Validator, error) {
	if strings.EqualFold(cfg.JWT.Alg, "RS256") {
		return auth.NewRS256Validator(cfg.JWT.PublicKeyPath)
	}
	return auth.NewHS256Validator(cfg.JWT.HSSecret), nil
}
