package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"searchlight/api/internal/app"
	"searchlight/api/internal/cache"
	"searchlight/api/internal/config"
	"searchlight/api/internal/search"
	"searchlight/api/internal/source"
	"searchlight/api/internal/store"
	"searchlight/api/internal/syncer"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	indexStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	sourceClient := source.NewClient(cfg.SourceURL, cfg.SourceSyncToken, cfg.SourcePageSize)

	// A nil *Meili must not leak into the interfaces as a typed nil.
	var accel search.Accelerator
	var reconciler *syncer.Reconciler
	if meiliClient != nil {
		accel = meiliClient
		reconciler = syncer.NewReconciler(sourceClient, indexStore, meiliClient)
	} else {
		reconciler = syncer.NewReconciler(sourceClient, indexStore, nil)
	}
	engine := search.NewService(indexStore, accel)
	scheduler := syncer.NewScheduler(reconciler, cfg.SyncInterval)
	scheduler.Start()
	defer scheduler.Stop()

	var responseCache app.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		responseCache = redisCache
		log.Printf("Response caching enabled")
	}

	service := app.NewService(engine, scheduler, responseCache, indexStore.Ping)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Searchlight API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
