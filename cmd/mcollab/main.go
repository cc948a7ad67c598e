package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/config"
	"github.com/xxxsen/mcollab/internal/coordinator"
	"github.com/xxxsen/mcollab/internal/docstore"
	"github.com/xxxsen/mcollab/internal/handler"
	"github.com/xxxsen/mcollab/internal/job"
	"github.com/xxxsen/mcollab/internal/middleware"
	"github.com/xxxsen/mcollab/internal/schedule"
)

const (
	apiPrefix       = "/api/v1"
	shutdownTimeout = 30 * time.Second
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mcollab",
		Short: "realtime collaborative document sync server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run mcollab server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			store, err := docstore.New(cfg.Store)
			if err != nil {
				return fmt.Errorf("init document store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logutil.GetLogger(context.Background()).Error("close document store failed", zap.Error(err))
				}
			}()
			return runServer(cfg, store)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, store docstore.Store) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("store", cfg.Store.Type),
		zap.Int("store_cache", cfg.Store.CacheSize),
		zap.Duration("debounce", cfg.Sync.Debounce()),
		zap.Duration("load_timeout", cfg.Sync.LoadTimeout()),
	)

	coord := coordinator.New(store, coordinator.Options{
		Debounce:    cfg.Sync.Debounce(),
		LoadTimeout: cfg.Sync.LoadTimeout(),
	})

	deps := handler.RouterDeps{
		Sync:          handler.NewSyncHandler(coord, cfg.CORSOrigins, cfg.Sync.SendQueue),
		Documents:     handler.NewDocumentHandler(coord),
		ConnectWindow: cfg.ConnectLimit(),
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		apiPrefix,
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiPrefix + "/ws"})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewHubStatsJob(coord), cfg.StatsCron); err != nil {
		return fmt.Errorf("schedule stats job: %w", err)
	}
	scheduler.Start(ctx)

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coord.Close(shutdownCtx); err != nil {
		logutil.GetLogger(context.Background()).Error("flush documents on shutdown failed", zap.Error(err))
		return err
	}
	logutil.GetLogger(context.Background()).Info("all documents flushed")
	return nil
}
