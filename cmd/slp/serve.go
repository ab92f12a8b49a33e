package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-slp/cacher"
	"github.com/cyberinferno/go-slp/config"
	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/metrics"
	"github.com/cyberinferno/go-slp/monitor"
	"github.com/cyberinferno/go-slp/scheduler"
	"github.com/cyberinferno/go-slp/status"
	"github.com/cyberinferno/go-slp/stream"
	"github.com/cyberinferno/go-slp/tcpserver"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		motd       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if listen != "" {
				cfg.Server.ListenAddress = listen
			}

			if motd != "" {
				cfg.Status.MOTD = motd
			}

			log, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Close()

			result := cfg.Validate()
			for _, w := range result.Warnings {
				log.Warn("config warning", logger.Str("field", w.Field), logger.Str("message", w.Message))
			}

			if !result.IsValid() {
				for _, e := range result.Errors {
					log.Error("config error", logger.Str("field", e.Field), logger.Str("message", e.Message))
				}

				return fmt.Errorf("invalid configuration in %s (%d errors)", cfg.Path(), len(result.Errors))
			}

			a, err := newApp(cfg, log, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Override server.listen_address")
	cmd.Flags().StringVar(&motd, "motd", "", "Override status.motd")

	return cmd
}

func newLogger(cfg config.LoggingConfig) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Level)
	if cfg.FileOutput {
		return logger.NewZerologFileLogger("slp", cfg.Directory, level)
	}

	return logger.NewConsoleLogger("slp", level), nil
}

// app is the wired front-end: acceptor, tick loop and monitor sharing one queue,
// one status provider and one metrics registry.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	registry  *prometheus.Registry
	provider  *status.Provider
	scheduler *scheduler.Scheduler
	server    *tcpserver.TCPServer
	monitor   *monitor.Server
	closers   []func() error
}

func newApp(cfg *config.Config, log logger.Logger, registry *prometheus.Registry) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: registry}

	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsConfig := metrics.DefaultConfig()
	metricsConfig.Registry = registry
	m := metrics.New(metricsConfig)

	cache, closeCache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	a.provider, err = status.NewProvider(cfg.Status.ProviderConfig(), cache, log)
	if err != nil {
		a.close()
		return nil, err
	}

	queue := scheduler.NewQueue()
	a.scheduler = scheduler.New(queue,
		scheduler.WithTickRate(cfg.Server.TickRate),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)

	streamConfig := cfg.Server.StreamConfig()
	statusTimeout := a.scheduler.Period()
	connLog := log.With(logger.Str("component", "connection"))
	a.server = &tcpserver.TCPServer{
		Logger:  log.With(logger.Str("component", "acceptor")),
		Name:    "slp",
		Addr:    cfg.Server.ListenAddress,
		Sink:    queue,
		Limiter: cfg.Server.AcceptLimiter(),
		Metrics: m,
		NewConnection: func(id uint32, conn net.Conn) *connection.Connection {
			return connection.New(id, stream.New(conn, streamConfig), conn.RemoteAddr(),
				connection.WithStatusSource(a.provider),
				connection.WithStatusTimeout(statusTimeout),
				connection.WithTimeoutTicks(cfg.Server.TimeoutTicks),
				connection.WithLogger(connLog),
				connection.WithObserver(m),
			)
		},
	}

	if cfg.Monitor.Enabled {
		a.monitor = monitor.NewServer(monitor.Config{
			Address: cfg.Monitor.Address,
			Debug:   cfg.Logging.Level == "debug",
		}, a.scheduler, a.provider, registry, log)
	}

	return a, nil
}

func newCache(cfg *config.Config) (cacher.Cacher[string], func() error, error) {
	ttl := time.Duration(cfg.Status.CacheTTLSeconds) * time.Second

	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:                  cfg.Cache.RedisAddress,
			Password:              cfg.Cache.RedisPassword,
			DB:                    cfg.Cache.RedisDB,
			ContextTimeoutEnabled: true,
		})

		return cacher.NewRedisCacher[string](client, cfg.Cache.KeyPrefix), client.Close, nil
	case config.CacheMemory, "":
		return cacher.NewMemoryCacher[string](ttl, 2*ttl+time.Minute), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// run blocks until ctx is cancelled or a component fails; either way every
// component is stopped before it returns.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.scheduler.Run(ctx) })
	g.Go(func() error { return a.server.Serve(ctx) })
	if a.monitor != nil {
		g.Go(func() error { return a.monitor.Run(ctx) })
	}

	a.log.Info("slp started",
		logger.Str("listen", a.cfg.Server.ListenAddress),
		logger.Any("tick_rate", a.cfg.Server.TickRate),
		logger.Str("cache", a.cfg.Cache.Backend),
	)

	err := g.Wait()
	a.log.Info("slp stopped")
	return err
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", logger.Err(err))
		}
	}
}
