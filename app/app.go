package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchktools/webby/config"
	"github.com/searchktools/webby/core"
	"github.com/searchktools/webby/core/observability"
)

// App ties configuration, the engine and its request monitor together.
type App struct {
	cfg     *config.Config
	engine  *core.Engine
	monitor *observability.Monitor
}

// New creates an application instance
func New(cfg *config.Config) *App {
	monitor := observability.NewMonitor()
	engine := core.NewEngine(
		core.WithWorkers(cfg.Workers),
		core.WithAccessLog(cfg.Verbose),
		core.WithMonitor(monitor),
	)

	return &App{
		cfg:     cfg,
		engine:  engine,
		monitor: monitor,
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Monitor returns the request monitor fed by the engine.
func (a *App) Monitor() *observability.Monitor {
	return a.monitor
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Run serves until SIGINT or SIGTERM.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.RunContext(ctx); err != nil {
		log.Fatalf("Server startup failed: %v", err)
	}
}

// RunContext serves until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	log.Printf("Starting webby on %s [%s]", a.cfg.Address(), a.cfg.Env)

	err := a.engine.Run(ctx, a.cfg.Address())
	if err == nil {
		log.Printf("Shut down cleanly")
	}
	return err
}
