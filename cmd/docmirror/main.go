package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/civicdocs/docmirror/internal/crawl"
	"github.com/civicdocs/docmirror/internal/crawler"
	"github.com/civicdocs/docmirror/internal/database"
	"github.com/civicdocs/docmirror/internal/document/repository"
	"github.com/civicdocs/docmirror/internal/export"
	"github.com/civicdocs/docmirror/internal/lfapi"
	"github.com/civicdocs/docmirror/internal/ops"
	"github.com/civicdocs/docmirror/internal/queue"
	"github.com/civicdocs/docmirror/internal/reconcile"
	"github.com/civicdocs/docmirror/internal/storage"
	"github.com/civicdocs/docmirror/internal/transport"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/civicdocs/docmirror/pkg/metrics"
)

const dequeueTimeout = 5 * time.Second

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: api=%s repo=%s root=%d mongo=%v minio=%v redis=%v",
		cfg.API.BaseURL, cfg.API.RepoName, cfg.API.RootFolderID,
		cfg.MongoDB.URI != "", cfg.MinIO.Endpoint != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MongoDB: document versions + crawl audit records
	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		logger.Fatalf("mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.MongoDB.Database)
	docRepo := repository.NewMongoRepo(db.Collection(database.DocumentsCollection))
	crawlStore := crawl.NewMongoStore(db.Collection(database.CrawlsCollection))

	// MinIO: PDFs and snapshot JSON
	blobs, err := storage.NewMinIOStorage(&cfg.MinIO)
	if err != nil {
		logger.Fatalf("minio: %v", err)
	}

	// Redis: export task queue
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("redis: %v", err)
	}
	tasks := queue.NewRedisQueue(rdb, "")

	// vendor API stack
	httpClient := transport.New(cfg.Transport)
	apiClient := lfapi.New(httpClient, cfg.API.BaseURL, cfg.API.RepoName, cfg.API.VDirName)

	crawlerSvc := crawler.New(apiClient, blobs, crawlStore, cfg.Crawl)
	reconciler := reconcile.New(docRepo, apiClient.DocumentURL)
	orchestrator := export.New(apiClient, docRepo, blobs, cfg.Export)

	// one scheduled pass: crawl, reconcile, enqueue export work
	crawlPass := func(ctx context.Context) error {
		snap, err := crawlerSvc.Run(ctx, cfg.API.RootFolderID)
		if err != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		created, err := reconciler.Reconcile(ctx, snap)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		for _, nv := range created {
			t := &queue.ExportTask{RecordID: nv.RecordID, EntryID: nv.EntryID, LocalVersion: nv.LocalVersion}
			if err := tasks.Enqueue(ctx, t); err != nil {
				return fmt.Errorf("enqueue record %s: %w", nv.RecordID, err)
			}
		}
		logger.Infof("crawl pass: %d documents in snapshot, %d queued for export",
			len(snap.Documents), len(created))
		return nil
	}
	go queue.NewScheduler("crawl", cfg.Crawl.Interval, crawlPass).Start(ctx)

	// sweep records whose export failed (or was lost to a crash) back
	// through the pipeline
	retryPass := func(ctx context.Context) error {
		results, err := orchestrator.ExportPending(ctx, cfg.Export.Concurrency)
		if err != nil {
			return fmt.Errorf("retry pending exports: %w", err)
		}
		if len(results) > 0 {
			logger.Infof("retry sweep: %d export jobs run", len(results))
		}
		return nil
	}
	go queue.NewScheduler("export-retry", cfg.Export.RetryInterval, retryPass).Start(ctx)

	// export workers, each pulls one task at a time
	for i := 0; i < cfg.Export.Concurrency; i++ {
		go func(worker int) {
			for ctx.Err() == nil {
				task, err := tasks.Dequeue(ctx, dequeueTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Errorf("worker %d: dequeue: %v", worker, err)
					continue
				}
				if task == nil {
					continue
				}
				res, err := orchestrator.Export(ctx, task.RecordID)
				if err != nil {
					logger.Errorf("worker %d: export %s: %v", worker, task.RecordID, err)
					continue
				}
				logger.Infof("worker %d: record %s -> %s", worker, task.RecordID, res.State)
			}
		}(i)
	}

	// ops endpoints: liveness, readiness, metrics
	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	checks := map[string]ops.CheckFunc{
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	r.GET("/health", ops.HealthHandler)
	r.GET("/ready", ops.ReadyHandler(checks, crawlStore))
	r.GET("/documents/:id/pdf", ops.DocumentPDFHandler(docRepo, blobs))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Infof("ops server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("ops server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("ops server shutdown: %v", err)
	}
}
