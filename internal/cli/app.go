// Package cli implements the dataflow command line.
package cli

import (
	"context"
	"errors"

	"github.com/kbukum/dataflow/config"
	"github.com/kbukum/dataflow/executor"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/observability"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/ops"
	"github.com/kbukum/dataflow/recipe"
	"github.com/kbukum/dataflow/resilience"
	"github.com/kbukum/dataflow/sizing"
	"github.com/kbukum/dataflow/status"
	"github.com/kbukum/dataflow/version"
)

// app holds what every command builds from the service configuration.
type app struct {
	cfg      *config.AppConfig
	log      *logger.Logger
	registry *op.Registry
	sink     op.StatusSink
	metrics  *observability.PipelineMetrics
	acct     sizing.Accountant
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load("dataflow", opts...)
	if err != nil {
		return nil, err
	}
	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)
	log.Debug("configuration loaded", version.Get().Fields())

	reg := op.NewRegistry()
	if err := ops.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		acct:     sizing.NewLedger(sizing.NewHostAccountant(cfg.Resources)),
	}

	sinks := status.Multi{status.NewLogSink(log)}
	if cfg.Status.Enabled {
		redisSink, client, err := status.NewRedisSinkFromConfig(cfg.Status, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, status.NewBreaker(redisSink, resilience.BreakerConfig{Name: "redis"}, log))
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	}
	a.sink = sinks

	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, cfg.Tracing)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, tp.Shutdown)
	}
	if cfg.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, &cfg.Metrics)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, mp.Shutdown)
		a.metrics, err = observability.NewPipelineMetrics(observability.Meter("dataflow"))
		if err != nil {
			a.close(ctx)
			return nil, err
		}
	}
	return a, nil
}

// executor builds the executor for the recipe at path.
func (a *app) executor(path, runID string) (*executor.Executor, *recipe.Recipe, error) {
	r, err := recipe.Load(path)
	if err != nil {
		return nil, nil, err
	}
	e, err := executor.FromRecipe(r, executor.Deps{
		Registry:   a.registry,
		Sink:       a.sink,
		Accountant: a.acct,
		Metrics:    a.metrics,
		Log:        a.log,
	}, executor.BuildOptions{Retry: a.cfg.Retry, MaxProc: a.cfg.MaxProc, RunID: runID})
	if err != nil {
		return nil, nil, err
	}
	return e, r, nil
}

// close flushes exporters and closes clients, newest first.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
