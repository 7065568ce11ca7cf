package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"spate/internal/config"
	"spate/internal/downloader"
	apphttp "spate/internal/http"
	"spate/internal/registry"
	"spate/internal/repository"
	"spate/internal/repository/jsonfile"
	"spate/internal/repository/sqlite"
	"spate/internal/service"
	"spate/internal/snapshot"
	"spate/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup store: %v", err)
	}
	defer closeStore()

	engine := downloader.NewClient(downloader.Config{
		DataDir:    cfg.Engine.DownloadDir,
		ListenPort: cfg.Engine.ListenPort,
		Seed:       cfg.Engine.Seed,
		NoUpload:   cfg.Engine.NoUpload,
		Logger:     logger,
	})
	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("start engine: %v", err)
	}

	reg := registry.New()
	torrents := service.NewTorrentService(service.TorrentServiceConfig{
		DefaultPrivate:    cfg.Engine.Private,
		DefaultCreator:    cfg.Engine.Creator,
		ResetCorruptStore: cfg.Store.ResetOnCorrupt,
		Logger:            logger,
	}, reg, engine, store)

	if _, err := torrents.Restore(ctx); err != nil {
		engine.Shutdown()
		logger.Fatalf("restore transfers: %v", err)
	}

	hub := snapshot.NewHub()
	scheduler := snapshot.NewScheduler(snapshot.Config{
		Interval: cfg.Snapshot.Interval,
		Logger:   logger,
	}, reg, engine, hub)
	go func() {
		_ = scheduler.Run(ctx)
	}()

	auth := service.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.PasswordHash, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	if !auth.Enabled() {
		logger.Warn("auth disabled, the api accepts unauthenticated requests")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		torrents,
		scheduler,
		hub,
		service.LocalPathSelector{DefaultDir: cfg.Engine.DownloadDir},
		auth,
		apphttp.Options{DefaultPrivate: cfg.Engine.Private, Logger: logger},
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	torrents.Close()
	engine.Shutdown()

	logger.Info("bye")
}

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.TorrentStore, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open database: %w", err)
		}
		repo := sqlite.NewTorrentRepository(db)
		if err := repo.Init(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("init torrent repository: %w", err)
		}
		logger.Infof("using sqlite store %s", cfg.Store.SQLitePath)
		return repo, func() { _ = db.Close() }, nil
	case "s3":
		store, err := buildS3Store(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		logger.Infof("using s3 store %s (region %s)", store.Location(), cfg.Store.Region)
		return store, noop, nil
	default:
		logger.Infof("using json store %s", cfg.Store.Path)
		return jsonfile.NewStore(cfg.Store.Path), noop, nil
	}
}

func buildS3Store(ctx context.Context, cfg config.Config) (*storage.S3Store, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Store.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Store.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
			o.UsePathStyle = true
		}
	})
	return storage.NewS3Store(client, storage.Location{Bucket: cfg.Store.Bucket, Key: cfg.Store.Key})
}
