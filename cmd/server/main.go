// API server: serves the portal endpoints and manual sync triggers.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/klaviyo-sync/internal/api"
	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/crypto"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
	syncsvc "github.com/ignite/klaviyo-sync/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	applyLogLevel(cfg.LogLevel)

	key, err := crypto.ParseKey(cfg.Crypto.KeyHex)
	if err != nil {
		log.Fatalf("parsing credential key: %v", err)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	redisClient := openRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	st := store.New(db, redisClient)
	svc := syncsvc.New(st, cfg.Klaviyo, cfg.Sync, key)
	handlers := api.NewHandlers(st, svc, cfg, key)
	server := api.NewServer(cfg.Server, handlers)

	go func() {
		logger.Info("server: listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("server: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server: shutdown failed", "error", err)
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without cache", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	return client
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
}
