package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/auction"
	"github.com/clickarena/engine/pkg/audit"
	"github.com/clickarena/engine/pkg/db"
	"github.com/clickarena/engine/pkg/events"
	"github.com/clickarena/engine/pkg/fraud"
	"github.com/clickarena/engine/pkg/ledger"
	"github.com/clickarena/engine/pkg/logging"
	"github.com/clickarena/engine/pkg/progress"
	redisclient "github.com/clickarena/engine/pkg/redis"
	"github.com/clickarena/engine/pkg/rotation"
)

// App wires the auction engine together: storage, the click pipeline, the
// expiry sweep and rotation cron jobs, and the HTTP/WebSocket surface.
type App struct {
	Cfg ServiceConfig

	Store    db.Store
	Engine   *auction.Engine
	Rotation *rotation.Scheduler
	Bus      *events.Bus
	Redis    *redisclient.Client
	Progress *progress.Async

	Cron   *cron.Cron
	Logger *zap.Logger
	Server *http.Server
}

// Initialize builds the App from the environment.
func Initialize(ctx context.Context, evaluator progress.Evaluator) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}

	cfg := LoadServiceConfig()

	var store db.Store
	if cfg.DBPath == "" || cfg.DBPath == ":memory:" {
		logger.Info("Using in-memory store")
		store = db.NewMemory()
	} else {
		store, err = db.OpenSQLite(ctx, cfg.DBPath, logger)
		if err != nil {
			logger.Fatal("Unable to open store", zap.Error(err))
		}
	}

	bus := events.NewBus()
	notifiers := events.Fanout{bus}

	var redisCli *redisclient.Client
	if cfg.RedisOn {
		redisCli, err = redisclient.NewClient(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to connect to Redis", zap.Error(err))
		}
		notifiers = append(notifiers, events.NewRedisNotifier(redisCli, logger))
	}

	sink := audit.NewLogSink(logger)
	engineCfg := LoadEngineConfig()
	led := ledger.New(store, engineCfg.LockTimeout, logger)
	detector := fraud.NewDetector(LoadFraudConfig(), sink, logger)
	eng := auction.NewEngine(engineCfg, store, led, detector, notifiers, sink, logger)

	if evaluator == nil {
		evaluator = progress.NopEvaluator{}
	}
	prog := progress.NewAsync(evaluator, cfg.ProgressWorkers, logger)
	eng.SetProgress(prog)

	rot := rotation.NewScheduler(LoadRotationConfig(), store, eng.Sequences(), logger)

	app := &App{
		Cfg:      cfg,
		Store:    store,
		Engine:   eng,
		Rotation: rot,
		Bus:      bus,
		Redis:    redisCli,
		Progress: prog,
		Logger:   logger,
	}

	if err := app.SetupScheduler(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// SetupScheduler registers the sweep and rotation cron jobs.
func (a *App) SetupScheduler(ctx context.Context) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := a.Cron.AddFunc(a.Cfg.SweepSpec, func() {
		sctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		activated, ended, serr := a.Engine.Sweep(sctx)
		if serr != nil {
			a.Logger.Error("sweep failed", zap.Error(serr))
			return
		}
		if activated > 0 || ended > 0 {
			a.Logger.Info("sweep pass",
				zap.Int("activated", activated),
				zap.Int("ended", ended))
		}
	})
	if err != nil {
		return err
	}

	if a.Cfg.RotationOn {
		spec := RotationCronSpec(LoadRotationConfig())
		_, err = a.Cron.AddFunc(spec, func() {
			rctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			report, rerr := a.Rotation.Run(rctx, false)
			if rerr != nil {
				a.Logger.Error("rotation failed",
					zap.Int("created", report.Created),
					zap.Int("cleaned_ended", report.CleanedEnded),
					zap.Int("cleaned_waiting", report.CleanedWaiting),
					zap.Error(rerr))
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("sweep_spec", a.Cfg.SweepSpec))
}

// StopCron stops the cron scheduler and waits for running jobs.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// SweepOnce runs one immediate sweep pass before the cron takes over.
func (a *App) SweepOnce(ctx context.Context) {
	_, _, _ = a.Engine.Sweep(ctx)
}

// Ready indicates whether the application can serve traffic.
func (a *App) Ready() bool {
	return a.Store != nil
}

// Start runs the HTTP server until the context is cancelled, then shuts
// everything down.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	a.Logger.Info("Engine listening", zap.String("addr", a.Cfg.Addr))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	a.StopCron()
	a.Progress.Close()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("store close failed", zap.Error(err))
	}
	a.Logger.Info("shutting down…")
}
