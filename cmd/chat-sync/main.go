package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-sync/internal/api"
	"github.com/fathima-sithara/chat-sync/internal/auth"
	cfgpkg "github.com/fathima-sithara/chat-sync/internal/config"
	"github.com/fathima-sithara/chat-sync/internal/events"
	"github.com/fathima-sithara/chat-sync/internal/identity"
	"github.com/fathima-sithara/chat-sync/internal/logger"
	"github.com/fathima-sithara/chat-sync/internal/service"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			cfgPath = "config.yaml"
		}
	}
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	var (
		st       store.Store
		resolver identity.Resolver
	)
	if cfg.Mongo.URI != "" {
		client, err := store.NewMongoClient(context.Background(), cfg.Mongo.URI)
		if err != nil {
			zlog.Fatalw("mongo init", "err", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.Mongo.DB)
		st = store.NewMongoStore(db, zlog)
		resolver = identity.NewMongoResolver(db, cfg.Sync.SearchLimit)
	} else {
		zlog.Warnw("no mongo uri configured, using in-memory store")
		st = store.NewMemoryStore()
		resolver = identity.NewStaticResolver()
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		resolver = identity.NewCachedResolver(resolver, rdb, cfg.ProfileTTL)
	}

	var pub *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog)
		defer func() { _ = pub.Close() }()
	}

	dir := service.NewDirectory(st, zlog)
	thread := service.NewThread(st, pub, zlog)
	presence := service.NewPresence(st, zlog)
	tracker := service.NewTracker(st, pub, zlog)
	agg := service.NewAggregator(dir, resolver, zlog)

	app := api.NewServer(api.Deps{
		Cfg:       cfg,
		Log:       zlog,
		Validator: auth.NewValidator(cfg.JWT.Secret),
		Directory: dir,
		Thread:    thread,
		Presence:  presence,
		Tracker:   tracker,
		Agg:       agg,
		Resolver:  resolver,
	})

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.App.Port)); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("chat-sync started", "port", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	zlog.Infow("chat-sync stopped")
}
