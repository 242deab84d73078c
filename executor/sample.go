package executor

import (
	"context"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
)

// Sampling algorithms.
const (
	SampleUniform   = "uniform"
	SampleTopK      = "topk_specified_field_selector"
	SampleFrequency = "frequency_specified_field_selector"
)

// SampleConfig selects a subset of a dataset without running the plan.
type SampleConfig struct {
	Algorithm string
	Ratio     float64
	FieldKey  string
	TopK      int
	Reverse   bool
	Seed      int64
}

func (c SampleConfig) spec() (string, map[string]any, error) {
	switch c.Algorithm {
	case SampleUniform, "":
		args := map[string]any{"select_ratio": c.Ratio}
		if c.Seed != 0 {
			args["seed"] = c.Seed
		}
		return "random_selector", args, nil
	case SampleTopK, SampleFrequency:
		args := map[string]any{
			"field_key": c.FieldKey,
			"top_ratio": c.Ratio,
			"topk":      c.TopK,
			"reverse":   c.Reverse,
		}
		return c.Algorithm, args, nil
	default:
		return "", nil, errors.InvalidInput("algorithm", "unknown sampling algorithm "+c.Algorithm)
	}
}

// Sample applies the selector behind cfg.Algorithm to ds. A uniform sample
// with a ratio of one or more returns ds unchanged.
func (e *Executor) Sample(ctx context.Context, ds *dataset.Dataset, cfg SampleConfig) (*dataset.Dataset, error) {
	if (cfg.Algorithm == SampleUniform || cfg.Algorithm == "") && cfg.Ratio >= 1 {
		return ds, nil
	}
	name, args, err := cfg.spec()
	if err != nil {
		return nil, err
	}
	factory, err := e.deps.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	sel, err := factory(args)
	if err != nil {
		return nil, err
	}
	sel.Bind(0, e.cfg.RunID)

	rc := e.runContext()
	rc.Tracer = nil
	out, err := sel.Run(ctx, rc, ds)
	if err != nil {
		return nil, err
	}
	e.log.Info("dataset sampled", logger.Fields(
		"algorithm", name,
		logger.FieldRecordsIn, ds.Len(),
		logger.FieldRecordsOut, out.Len(),
	))
	return out, nil
}

// SampleSource samples the latest checkpoint when checkpointing is on and
// one matches the plan; otherwise it ingests and formats the source. The
// plan is not run.
func (e *Executor) SampleSource(ctx context.Context, cfg SampleConfig) (*dataset.Dataset, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput("executor", "run already started")
	}
	ds, err := e.sampleInput(ctx)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	out, err := e.Sample(ctx, ds, cfg)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	e.setState(StateFinished)
	return out, nil
}

func (e *Executor) sampleInput(ctx context.Context) (*dataset.Dataset, error) {
	if e.cfg.UseCheckpoint && e.deps.Checkpoints != nil && e.deps.Checkpoints.Available(e.cfg.Plan) {
		e.setState(StateRestoring)
		ds, st, err := e.deps.Checkpoints.Load(ctx)
		if err != nil {
			return nil, errors.PhaseFailed(PhaseRestore, err)
		}
		e.log.Info("sampling from checkpoint", logger.Fields("last_index", st.LastIndex, logger.FieldRecordsIn, ds.Len()))
		return ds, nil
	}
	e.setState(StateIngesting)
	source, err := e.deps.Ingester.Ingest(ctx)
	if err != nil {
		return nil, errors.PhaseFailed(PhaseIngest, err)
	}
	e.setState(StateFormatting)
	ds, err := e.deps.Formatter.Load(ctx, source, e.cfg.NP)
	if err != nil {
		return nil, errors.PhaseFailed(PhaseFormat, err)
	}
	return ds, nil
}
