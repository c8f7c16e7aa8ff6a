package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/five82/jpdict/internal/broadcast"
	"github.com/five82/jpdict/internal/config"
	"github.com/five82/jpdict/internal/dataserver"
	"github.com/five82/jpdict/internal/flatdict"
	"github.com/five82/jpdict/internal/indicator"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/lifecycle"
	"github.com/five82/jpdict/internal/localstore"
	"github.com/five82/jpdict/internal/loop"
	"github.com/five82/jpdict/internal/report"
	"github.com/five82/jpdict/internal/search"
	"github.com/five82/jpdict/internal/server"
	"github.com/five82/jpdict/internal/state"
	"github.com/five82/jpdict/internal/telemetry"
	"github.com/five82/jpdict/internal/updater"
)

// Options configure the orchestrator.
type Options struct {
	Config config.Config
	// ConfigPath is watched for changes. Empty disables watching.
	ConfigPath string
	// Serve starts the HTTP control surface and the listener socket.
	Serve bool
	// Sinks receive the action button state in addition to the in-memory
	// one served at /indicator.
	Sinks  []indicator.Sink
	Logger *slog.Logger

	// Reporter and Factory replace the defaults, mostly for tests.
	Reporter report.Reporter
	Factory  lifecycle.Factory
	Idle     lifecycle.IdleFunc
}

// App is the orchestrator. Its mutable state is only changed from tasks
// running on its loop.
type App struct {
	logger     *slog.Logger
	configPath string
	serve      bool

	cfgMu sync.RWMutex
	cfg   config.Config

	loop        *loop.Loop
	store       *localstore.Store
	state       *state.Store
	registry    *prometheus.Registry
	metrics     *telemetry.Metrics
	reporter    report.Reporter
	lifecycle   *lifecycle.Manager
	updater     *updater.Scheduler
	broadcaster *broadcast.Broadcaster
	cycler      *search.Cycler
	source      jpdict.Source

	recording *indicator.RecordingSink
	sinks     []indicator.Sink

	// toggleMu keeps enable and disable from interleaving.
	toggleMu sync.Mutex

	dictMu sync.RWMutex
	dict   *flatdict.Dict

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires the orchestrator's components. Nothing runs until Run.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config

	store, err := localstore.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	reporter := opts.Reporter
	if reporter == nil {
		installID, err := store.InstallID()
		if err != nil {
			logger.Warn("could not read install id", "error", err)
		}
		reporter = report.NewLogReporter(logger, report.Options{
			InstallID:    installID,
			ReleaseStage: cfg.ReleaseStage,
			Metrics:      metrics,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		logger:     logger,
		configPath: opts.ConfigPath,
		serve:      opts.Serve,
		cfg:        cfg,
		loop:       loop.New(logger.With("component", "loop")),
		store:      store,
		state:      &state.Store{},
		registry:   registry,
		metrics:    metrics,
		reporter:   reporter,
		recording:  &indicator.RecordingSink{},
		sinks:      opts.Sinks,
		ctx:        ctx,
		cancel:     cancel,
	}

	factory := opts.Factory
	if factory == nil {
		client, err := dataserver.NewClient(cfg.DataURL, dataserver.WithUserAgent("jpdict"))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("init data client: %w", err)
		}
		a.source = client
		factory = a.newDatabase
	}

	idle := opts.Idle
	if idle == nil {
		// Open runs off the loop, so waiting for the loop to drain is safe here.
		idle = func(ctx context.Context) error {
			return a.loop.WaitIdle(ctx, lifecycle.DefaultIdleCeiling)
		}
	}
	a.lifecycle = lifecycle.New(lifecycle.Options{
		Factory: factory,
		OnChange: func() {
			a.broadcaster.Notify()
		},
		OnWarning: func(msg string) {
			a.reporter.NotifyMessage(msg, report.SeverityWarning)
		},
		Idle:    idle,
		Logger:  logger.With("component", "lifecycle"),
		Metrics: metrics,
	})

	a.broadcaster = broadcast.New(broadcast.Options{
		Loop:      a.loop,
		Handle:    a.lifecycle.Handle,
		LastError: a.state.LastUpdateError,
		Store:     store,
		Reporter:  reporter,
		OnFlush:   a.refreshIndicator,
		Logger:    logger.With("component", "broadcast"),
		Metrics:   metrics,
	})

	retrier := updater.NewRetrier(updater.RetrierOptions{
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Logger:          logger.With("component", "retrier"),
		Metrics:         metrics,
	})
	a.updater = updater.New(updater.Options{
		Lifecycle:    a.lifecycle,
		Retrier:      retrier,
		Store:        store,
		Loop:         a.loop,
		Reporter:     reporter,
		Notify:       func() { a.broadcaster.Notify() },
		SetLastError: a.state.SetLastUpdateError,
		Lang:         func() string { return a.config().DictLang },
		Threshold:    cfg.UpdateThreshold,
		Logger:       logger.With("component", "updater"),
	})

	a.cycler = search.NewCycler(search.Options{
		Words:      a.wordSearcher,
		Kanji:      search.NewKanjiBackend(a.lifecycle, reporter),
		ShowRomaji: func() bool { return a.config().ShowRomaji },
		Reporter:   reporter,
		Logger:     logger.With("component", "search"),
	})

	return a, nil
}

func (a *App) newDatabase(hooks lifecycle.Hooks) lifecycle.Handle {
	cfg := a.config()
	return jpdict.New(jpdict.Options{
		Path:      cfg.DatabasePath(),
		Source:    a.source,
		Lang:      cfg.DictLang,
		Logger:    a.logger.With("component", "database"),
		OnChange:  hooks.OnChange,
		OnWarning: hooks.OnWarning,
	})
}

// Run starts the orchestrator and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return a.loop.Run(egctx)
	})

	if a.serve {
		cfg := a.config()
		srv := server.New(server.Options{
			Runtime:    a,
			HTTPBind:   cfg.HTTPBind,
			SocketPath: cfg.SocketPath,
			Gatherer:   a.registry,
			Logger:     a.logger.With("component", "server"),
		})
		eg.Go(func() error {
			return srv.Serve(egctx)
		})
	}

	if a.configPath != "" {
		eg.Go(func() error {
			return config.Watch(egctx, a.configPath, a.config(), a.logger.With("component", "config"), a.configChanged)
		})
	}

	StartPoller(egctx, a.config().PollInterval, a.logger, func() {
		a.reporter.Breadcrumb("Running periodic update check")
		a.updater.MaybeUpdate()
	})

	a.loop.Post(a.startup)

	return eg.Wait()
}

// Close stops background work and closes the database.
func (a *App) Close() {
	a.cancel()
	a.updater.Close()
	a.lifecycle.Shutdown()
}

// startup opens the database, restores the enabled flag and checks for
// updates.
func (a *App) startup() {
	a.lifecycle.Open()

	a.reporter.Breadcrumb("Running update check on startup")
	a.updater.MaybeUpdate()

	go func() {
		enabled, err := a.store.Enabled()
		if err != nil {
			a.reporter.Notify(err, report.SeverityWarning)
			return
		}
		if !enabled {
			return
		}
		a.reporter.Breadcrumb("Enabling because lookups were on in the previous run")
		if err := a.enable(a.ctx); err != nil {
			a.logger.Warn("restoring enabled state failed", "error", err)
		}
	}()
}

func (a *App) config() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *App) setConfig(cfg config.Config) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.cfg = cfg
}

func (a *App) currentDict() *flatdict.Dict {
	a.dictMu.RLock()
	defer a.dictMu.RUnlock()
	return a.dict
}

func (a *App) setDict(d *flatdict.Dict) {
	a.dictMu.Lock()
	defer a.dictMu.Unlock()
	a.dict = d
}

// wordSearcher returns nil rather than a typed nil when nothing is loaded.
func (a *App) wordSearcher() search.WordSearcher {
	if d := a.currentDict(); d != nil {
		return d
	}
	return nil
}
