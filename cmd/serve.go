package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/cache"
	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline and the calculator over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	runner, err := newRunner(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	if config.Cache.enabled() {
		runCache := cache.New(cache.NewRedisClient(*config.Cache.Redis), config.Cache.ttl(), logger)
		defer runCache.Close()

		if err := runCache.Ping(ctx); err != nil {
			logger.Warn("skipping the run cache", zap.Error(err))
		} else {
			runner = cache.NewCachedRunner(runner, runCache, config.Pipeline.ScoreMode, logger)
		}
	}

	handler, err := server.New(server.Config{
		Runner:  runner,
		Strict:  config.Scoring.Strict,
		Version: version,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("building http handler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", zap.Error(err))
		}
	}()

	logger.Info("serving http api", zap.String("addr", srv.Addr), zap.String("version", version))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}

	logger.Info("http server stopped")
}
