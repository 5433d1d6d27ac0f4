package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	mqttClient "github.com/tetragramaton/smh-node/internal/client/mqtt"
	"github.com/tetragramaton/smh-node/internal/config"
	"github.com/tetragramaton/smh-node/internal/dispatch"
	serialIface "github.com/tetragramaton/smh-node/internal/interface/serial"
	"github.com/tetragramaton/smh-node/internal/metrics"
	"github.com/tetragramaton/smh-node/internal/node"
)

// sourceRestartDelay is the pause before reopening a failed line source.
const sourceRestartDelay = 2 * time.Second

type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Machine    *node.Machine
	Dispatcher *dispatch.Dispatcher
	Session    *mqttClient.Session
	Source     serialIface.LineSource
	Metrics    *metrics.Server
}

func NewApp(
	cfg *config.Config,
	log *zap.Logger,
	machine *node.Machine,
	d *dispatch.Dispatcher,
	session *mqttClient.Session,
	source serialIface.LineSource,
	metricsServer *metrics.Server,
) *App {
	return &App{
		Config:     cfg,
		Log:        log,
		Machine:    machine,
		Dispatcher: d,
		Session:    session,
		Source:     source,
		Metrics:    metricsServer,
	}
}

// Run drives the node until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runSource(ctx)
	}()

	if a.Metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Metrics.Run(ctx); err != nil {
				a.Log.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	a.Log.Info("node starting", zap.String("source", a.Config.Source.Kind))
	a.Machine.Start()
	err := a.Dispatcher.Run(ctx, a.Machine)

	cancel()
	if cerr := a.Source.Close(); cerr != nil {
		a.Log.Warn("closing line source", zap.Error(cerr))
	}
	_ = a.Session.Close()
	wg.Wait()
	a.Log.Info("node stopped", zap.Stringer("state", a.Machine.State()))
	return err
}

// Reload reads the configuration again and restarts the lifecycle with it.
// Only node and broker settings take effect; source, network and logging
// changes need a restart.
func (a *App) Reload(opts Options) {
	cfg, err := config.Load(opts.ConfigPath, opts.EnvFile)
	if err != nil {
		a.Log.Error("reloading configuration", zap.Error(err))
		return
	}
	cc, err := cfg.ClientConfig()
	if err != nil {
		a.Log.Error("reloading configuration", zap.Error(err))
		return
	}
	a.Log.Info("configuration reloaded")
	a.Dispatcher.SubmitConfig(cc)
}

func (a *App) runSource(ctx context.Context) {
	for {
		err := a.Source.Run(ctx, a.Dispatcher.SubmitLine)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.Log.Error("line source failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sourceRestartDelay):
		}
	}
}
