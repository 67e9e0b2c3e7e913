package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/cache"
	"respondeo-service/internal/config"
	"respondeo-service/internal/infra/memory"
	infraredis "respondeo-service/internal/infra/redis"
	"respondeo-service/internal/logging"
	"respondeo-service/internal/metrics"
	transport "respondeo-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seedFile)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file of quizzes to load before serving")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag, seedFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogOptions())
	defer log.Sync()
	metrics.Register(prometheus.DefaultRegisterer)

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store unavailable", zap.Error(err))
		return err
	}
	defer closeStore()

	layer, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := layer.Close(); err != nil {
			log.Warn("close cache", zap.Error(err))
		}
	}()

	ttls := cfg.CacheTTLs()
	notifier := app.NewNotifier()
	quizzes := app.NewQuizService(st, layer, ttls, notifier, log.Named("quizzes"))
	attempts := app.NewAttemptService(st, layer, notifier, log.Named("attempts"))
	leaderboards := app.NewLeaderboardService(st, layer, ttls)

	if seedFile != "" {
		if _, err := seedQuizzes(ctx, quizzes, seedFile, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.Deps{
			Quizzes:             quizzes,
			Attempts:            attempts,
			Leaderboards:        leaderboards,
			Notifier:            notifier,
			Log:                 log.Named("http"),
			SubmitRatePerMinute: cfg.Server.SubmitRatePerMinute,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz service",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Dialect),
			zap.String("cache", cfg.CacheBackend()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		log.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openCache picks the cache backend. A redis that is down at startup is only
// logged: the layer falls through to the store until it comes back.
func openCache(ctx context.Context, cfg config.Config, log *zap.Logger) (*cache.Layer, error) {
	opts := cfg.RedisOptions()
	var backend cache.Backend
	switch cfg.CacheBackend() {
	case config.CacheRedis:
		client, err := infraredis.NewClient(opts)
		if err != nil {
			return nil, err
		}
		if err := infraredis.Ping(ctx, client, time.Second); err != nil {
			log.Warn("redis unreachable at startup", zap.Error(err))
		}
		backend = infraredis.NewCache(client)
	case config.CacheMemory:
		backend = memory.NewCache()
	default:
		log.Info("caching disabled")
		backend = cache.Noop{}
	}
	return cache.NewLayer(backend, opts.Timeout, log.Named("cache")), nil
}
