package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"fixcal/internal/cache"
	"fixcal/internal/clock"
	"fixcal/internal/config"
	"fixcal/internal/fixture"
	appLog "fixcal/internal/log"
	"fixcal/internal/metadata"
	"fixcal/internal/metrics"
	"fixcal/internal/model"
	"fixcal/internal/reconcile"
	"fixcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
}

// app holds everything that needs an orderly shutdown.
type app struct {
	server  *http.Server
	service *fixture.Service
	warmer  *fixture.Warmer
	redis   *cache.RedisStore
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encode" {
		if err := runEncode(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(2)
		}
		return
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	logger, err := appLog.New(appLog.Config{
		Development: conf.Log.Development,
		Level:       conf.Log.Level,
		Format:      conf.Log.Format,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	appLog.SetLogger(logger)
	defer logger.Sync() //nolint:errcheck

	appLog.Info("fixcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"cache_backend", conf.Cache.Backend,
		"year_policy", conf.Reconcile.YearPolicy,
		"warm_teams", len(conf.Warm.Teams),
	)

	if !conf.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := build(conf, logger)
	if err != nil {
		appLog.Error("failed to initialise", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	a.warmer.Start()

	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			exitCode = 1
		}
	}

	a.shutdown()
	appLog.Info("fixcal exiting")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/fixcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")

	flag.Parse()

	return cfg
}

// build wires config into the running components.
func build(conf *config.Config, logger *zap.Logger) (*app, error) {
	policy, err := reconcile.ParseYearPolicy(conf.Reconcile.YearPolicy)
	if err != nil {
		return nil, err
	}
	slotStart, err := model.ParseTimeOfDay(conf.Reconcile.DefaultStart)
	if err != nil {
		return nil, err
	}
	slotEnd, err := model.ParseTimeOfDay(conf.Reconcile.DefaultEnd)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if conf.Metrics.Enabled {
		m = metrics.New()
	}

	clk := clock.NewSystem()
	validate := validator.New()
	loc := conf.Location()
	a := &app{}

	var store cache.Store = cache.NewMemory(clk)
	if conf.Cache.Backend == config.CacheRedis {
		client, err := cache.NewRedis(conf.Redis)
		if err != nil {
			appLog.Warn("redis unavailable; using in-memory cache", "addr", conf.Redis.Addr, "err", err)
		} else {
			a.redis = cache.NewRedisStore(client, logger)
			store = a.redis
		}
	}

	client := fixture.NewClient(conf.Provider, validate, m, logger.Named("provider"))
	a.service = fixture.NewService(client, store, fixture.ServiceOptions{
		TTL:      conf.Cache.TTL,
		Prefetch: conf.Cache.Prefetch,
		Clock:    clk,
		Metrics:  m,
		Logger:   logger.Named("cache"),
	})

	a.warmer, err = fixture.NewWarmer(a.service, conf.Warm.Cron, conf.Warm.Teams, logger.Named("warm"))
	if err != nil {
		return nil, err
	}

	engine := reconcile.NewEngine(reconcile.Options{
		Location:         loc,
		YearPolicy:       policy,
		DefaultStart:     slotStart,
		DefaultEnd:       slotEnd,
		MergeOverlapping: conf.Reconcile.MergeOverlappingPlaceholders,
		Clock:            clk,
		Logger:           logger.Named("reconcile"),
	})

	codec, err := metadata.NewCodec(validate, loc)
	if err != nil {
		return nil, err
	}

	srv := web.NewServer(conf, web.Deps{
		Teams:   a.service,
		Engine:  engine,
		Codec:   codec,
		Metrics: m,
		Clock:   clk,
		Logger:  logger.Named("http"),
	})
	a.server = srv.HTTPServer()
	return a, nil
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	a.warmer.Stop(ctx)
	a.service.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			appLog.Warn("redis close failed", "err", err)
		}
	}
}
