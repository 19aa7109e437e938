package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/api"
	"github.com/safar/kasir-pos/internal/auth"
	"github.com/safar/kasir-pos/internal/cache"
	"github.com/safar/kasir-pos/internal/catalog"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/safar/kasir-pos/internal/config"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/events"
	"github.com/safar/kasir-pos/internal/importer"
	"github.com/safar/kasir-pos/internal/logger"
	"github.com/safar/kasir-pos/internal/report"
	"github.com/safar/kasir-pos/internal/storage"
	"github.com/safar/kasir-pos/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(context.Background(), &cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	st := store.New(db)

	var lister catalog.Lister = st
	var productCache *cache.CachedLister
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, product cache will fall through to the database")
		}
		cancel()

		productCache = cache.NewCachedLister(st, cache.NewProductCache(rdb, cfg.Redis.TTL), log)
		lister = productCache
	}

	cat := catalog.New(lister, log)

	publisher := events.NewPublisher(cfg.Kafka, log)
	defer publisher.Close()

	opts := []checkout.Option{checkout.WithStockMode(checkout.StockMode(cfg.Checkout.StockMode))}
	if productCache != nil {
		opts = append(opts, checkout.WithCacheInvalidator(productCache))
	}
	checkoutSvc := checkout.NewService(st, cat, publisher, log, opts...)

	deps := api.Deps{
		DB:       db,
		Store:    st,
		Verifier: auth.NewVerifier(cfg.Auth),
		Catalog:  cat,
		Checkout: checkoutSvc,
		Reports:  report.NewService(st, time.Local, log),
		Importer: importer.New(st, cfg.Import, log),
	}
	if productCache != nil {
		deps.Cache = productCache
	}

	objects := storage.NewClient(cfg.Storage, log)
	if objects.Enabled() {
		deps.Images = storage.NewImages(objects, st, cfg.Storage.MaxImageSize, log)
	} else {
		log.Warn().Msg("STORAGE_URL not set, product image endpoints are disabled")
	}

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewServer(deps, api.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			ImportTimeout:  cfg.Import.Timeout,
			MaxImportBytes: cfg.Import.MaxFileSize,
			MaxImageBytes:  cfg.Storage.MaxImageSize,
		}, log).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("stock_mode", cfg.Checkout.StockMode).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
