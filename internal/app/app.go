package app

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/factsync/internal/config"
	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/httpserver"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/metrics"
	"github.com/MrSnakeDoc/factsync/internal/probe"
	"github.com/MrSnakeDoc/factsync/internal/redis"
	"github.com/MrSnakeDoc/factsync/internal/scheduler"
	"github.com/MrSnakeDoc/factsync/internal/sources"
	redisstore "github.com/MrSnakeDoc/factsync/internal/store/redis"
	"github.com/MrSnakeDoc/factsync/internal/utils"
	"github.com/MrSnakeDoc/factsync/internal/version"
)

// ntpTimeout bounds one offset query inside the clock probe.
const ntpTimeout = 2 * time.Second

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	conn     *redis.Connection
	pipeline *redisstore.Pipeline
	metrics  *metrics.Metrics
	loops    []*scheduler.PollLoop
	watcher  *scheduler.Watcher
	server   *httpserver.Server
	ready    atomic.Bool
}

// Probes holds the fact probes built from the configuration.
type Probes struct {
	IP    *probe.IPProbe
	Clock *probe.ClockProbe
}

// NewProbes resolves the sources file and builds both probes.
func NewProbes(cfg *config.Config, log logger.Logger) (*Probes, error) {
	src, err := sources.NewLoader(cfg.SourcesFile).Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	client := probe.NewHTTPClient(probe.HTTPClientConfig{
		Timeout:         cfg.ProbeTimeout + 5*time.Second,
		UserAgent:       "factsync/" + version.Version,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	})

	ipProbe := probe.NewIPProbe(client, src.Endpoints, log.Named("ip_probe"),
		probe.WithAttempts(cfg.ProbeAttempts),
		probe.WithTimeout(cfg.ProbeTimeout))

	var clockOpts []probe.ClockOption
	if cfg.NTPServer != "" {
		clockOpts = append(clockOpts, probe.WithOffsetSource(probe.NewNTPOffset(cfg.NTPServer), ntpTimeout))
	}
	clockProbe := probe.NewClockProbe(src.Zones, log.Named("clock_probe"), clockOpts...)

	log.Info("sources resolved",
		logger.Int("endpoints", len(src.Endpoints)),
		logger.Int("zones", len(src.Zones)),
		logger.Bool("ntp_offset", cfg.NTPServer != ""))

	return &Probes{IP: ipProbe, Clock: clockProbe}, nil
}

// New wires every unit without touching the network.
func New(cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	probes, err := NewProbes(cfg, loggerClient)
	if err != nil {
		return nil, err
	}

	conn, err := redis.New(redis.ConnectOptions{
		Addr:         cfg.RedisAddr(),
		User:         cfg.RedisUser,
		Password:     cfg.RedisPassword,
		RedisDB:      cfg.RedisDB,
		DialTimeout:  cfg.RedisDT,
		ReadTimeout:  cfg.RedisRT,
		WriteTimeout: cfg.RedisWT,
		PingTimeout:  cfg.RedisPingTimeout,
	}, loggerClient.Named("redis"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	m := metrics.New()
	pipeline := redisstore.NewPipeline(conn, loggerClient.Named("publish"),
		redisstore.WithAttempts(cfg.PublishRetries),
		redisstore.WithMetrics(m))

	policy := scheduler.Policy{
		Threshold:  cfg.EscalationThreshold,
		Cooldown:   cfg.EscalationCooldown,
		MaxBackoff: cfg.MaxBackoff,
	}

	a := &App{
		cfg:      cfg,
		logger:   loggerClient,
		conn:     conn,
		pipeline: pipeline,
		metrics:  m,
	}

	if cfg.EnableIPLoop {
		a.loops = append(a.loops, scheduler.NewPollLoop(scheduler.LoopConfig{
			Name:       string(domain.KindPublicIP),
			Interval:   cfg.PollInterval,
			ChangeOnly: cfg.IPChangeOnly,
			Policy:     policy,
		}, probes.IP, pipeline, loggerClient.Named("loop"), scheduler.WithLoopMetrics(m)))
	}
	if cfg.EnableClockLoop {
		a.loops = append(a.loops, scheduler.NewPollLoop(scheduler.LoopConfig{
			Name:       string(domain.KindServerTime),
			Interval:   cfg.PollInterval,
			ChangeOnly: cfg.ClockChangeOnly,
			Policy:     policy,
		}, probes.Clock, pipeline, loggerClient.Named("loop"), scheduler.WithLoopMetrics(m)))
	}
	if cfg.EnableWatcher {
		a.watcher = scheduler.NewWatcher(probes.IP,
			scheduler.LogSink{Logger: loggerClient.Named("watcher"), Metrics: m},
			loggerClient.Named("watcher"),
			cfg.WatchInterval)
	}

	if cfg.ListenAddr != "" {
		d := deps.Deps{
			Logger:           loggerClient.Named("http"),
			StartTime:        time.Now(),
			Version:          version.Version,
			Commit:           version.Commit,
			BuildDate:        version.BuildDate,
			GoVersion:        version.GoVersion,
			TimeNow:          time.Now,
			AllowedCIDRS:     cfg.AllowedCIDRS,
			TrustProxy:       cfg.TrustProxy,
			PublisherID:      pipeline.PublisherID(),
			Store:            conn,
			StorePingTimeout: cfg.RedisPingTimeout,
			Metrics:          m.Handler(),
			Ready:            a.ready.Load,
		}
		for _, l := range a.loops {
			d.Loops = append(d.Loops, l)
		}
		if a.watcher != nil {
			d.Watcher = a.watcher
		}
		a.server = httpserver.New(cfg, loggerClient.Named("http"), d)
	}

	return a, nil
}

// Run starts every unit and blocks until ctx is done or a unit fails, then
// stops them in order within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting factsync",
		logger.String("version", version.Version),
		logger.String("commit", version.Commit),
		logger.String("go", version.GoVersion),
		logger.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
		logger.String("publisher_id", a.pipeline.PublisherID()),
		logger.String("store", storeLabel(a.conn)),
		logger.Int("loops", len(a.loops)),
		logger.Bool("watcher", a.watcher != nil),
		logger.String("listen_addr", a.cfg.ListenAddr))

	// In-flight I/O survives the stop signal; cancelHard ends it when the
	// shutdown timeout expires.
	hardCtx, cancelHard := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHard()
	g, gctx := errgroup.WithContext(hardCtx)

	// Startup steps that block (store sync, the watcher's synchronous first
	// check) end as soon as the stop signal arrives.
	startCtx, cancelStart := context.WithCancel(gctx)
	defer cancelStart()
	stopStart := context.AfterFunc(ctx, cancelStart)
	defer stopStart()

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Start(); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	if a.cfg.ResumeFromStore && a.conn.Configured() {
		a.resume(startCtx)
	}

	for _, l := range a.loops {
		g.Go(func() error { return l.Run(gctx) })
	}
	a.ready.Store(true)

	if a.watcher != nil {
		if err := a.watcher.Start(startCtx); err != nil {
			a.ready.Store(false)
			_ = a.shutdown(g, cancelHard)
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, stopping gracefully",
			logger.Duration("timeout", a.cfg.ShutdownTimeout))
	case <-gctx.Done():
		a.logger.Error("a unit failed, stopping")
	}
	a.ready.Store(false)

	return a.shutdown(g, cancelHard)
}

func (a *App) shutdown(g *errgroup.Group, cancelHard context.CancelFunc) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	for _, l := range a.loops {
		l.Stop()
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(scheduler.DefaultStopTimeout); err != nil {
			a.logger.Warn("watcher stop", logger.Error(err))
		}
	}
	if a.server != nil {
		if err := a.server.Stop(shutdownCtx); err != nil {
			a.logger.Warn("failed to stop http server", logger.Error(err))
		}
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("units still busy after shutdown timeout, cancelling in-flight work")
		cancelHard()
		err = <-done
	}

	utils.MustClose(a.conn, "redis connection", a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("factsync stopped cleanly")
	return nil
}

// resume seeds change-only loops from the store, bounded by one connect plus one read.
func (a *App) resume(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, a.cfg.RedisDT+a.cfg.RedisPingTimeout+a.cfg.RedisRT)
	defer cancel()

	n := scheduler.NewRedisSyncer(a.pipeline, a.logger.Named("sync")).Sync(syncCtx, a.loops...)
	a.logger.Debug("startup sync done", logger.Int("seeded", n))
}

// Loops exposes the poll loops (tests and status).
func (a *App) Loops() []*scheduler.PollLoop { return a.loops }

func storeLabel(c *redis.Connection) string {
	if !c.Configured() {
		return "disabled"
	}
	return c.Addr()
}
