package executor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/dataflow/checkpoint"
	"github.com/kbukum/dataflow/export"
	"github.com/kbukum/dataflow/format"
	"github.com/kbukum/dataflow/ingest"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/recipe"
	"github.com/kbukum/dataflow/resilience"
	"github.com/kbukum/dataflow/tracer"
)

const sqliteScheme = "sqlite://"

// BuildOptions carries the process-level settings FromRecipe needs on top
// of the recipe.
type BuildOptions struct {
	// Retry applies to HTTP ingest.
	Retry resilience.RetryConfig
	// MaxProc caps operator worker counts; 0 means no cap.
	MaxProc int
	// RunID names the run in status keys, logs and sqlite rows; empty
	// generates one.
	RunID string
}

// FromRecipe builds an executor for r. Collaborators left nil in deps are
// filled from the recipe: local or HTTP ingest, file formatting, file or
// sqlite export, file checkpoints and the file tracer.
func FromRecipe(r *recipe.Recipe, deps Deps, opts BuildOptions) (*Executor, error) {
	cfg, err := ConfigFromRecipe(r)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.RunID = opts.RunID
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	cfg.MaxProc = opts.MaxProc

	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = op.Default()
	}
	if deps.Ingester == nil {
		deps.Ingester = ingest.New(r.DatasetPath, cfg.WorkDir, opts.Retry, log)
	}
	if deps.Formatter == nil {
		deps.Formatter = format.NewFileFormatter(r.Suffixes, r.TextKey(), log)
	}
	if deps.Exporter == nil {
		deps.Exporter = exporterFor(r, cfg.RunID, log)
	}
	if deps.Checkpoints == nil && cfg.UseCheckpoint {
		deps.Checkpoints = checkpoint.NewFileManager(cfg.CkptDir, cfg.CacheCompress, cfg.RunID, log)
	}
	if deps.Tracer == nil && cfg.OpenTracer {
		deps.Tracer = tracer.NewFileTracer(cfg.traceDir(), log)
	}
	return New(cfg, deps)
}

func exporterFor(r *recipe.Recipe, runID string, log *logger.Logger) export.Exporter {
	if dsn, ok := strings.CutPrefix(r.ExportPath, sqliteScheme); ok {
		dsn, table, _ := strings.Cut(dsn, "#")
		return &export.SQLiteExporter{
			DSN:        dsn,
			Table:      table,
			RunID:      runID,
			KeepStats:  r.KeepStatsInResDS,
			KeepHashes: r.KeepHashesInResDS,
			Log:        log,
		}
	}
	return &export.FileExporter{
		Path:         r.ExportPath,
		ShardSize:    r.ExportShardSize,
		Parallel:     r.ExportInParallel,
		KeepStats:    r.KeepStatsInResDS,
		KeepHashes:   r.KeepHashesInResDS,
		BranchOrigin: r.Branch,
		Log:          log,
	}
}
