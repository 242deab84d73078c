package executor

import (
	"path/filepath"

	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/recipe"
)

// Config is the run configuration taken from a recipe.
type Config struct {
	RunID   string
	WorkDir string
	// NP is the worker count for loading the source.
	NP int
	// MaxProc caps the worker count derived for each operator; zero means
	// no cap.
	MaxProc int

	UseCheckpoint bool
	CkptDir       string
	UseCache      bool
	CacheCompress compress.Codec

	OpenTracer    bool
	TraceNum      int
	OpListToTrace []string
	OpFusion      bool

	Plan []recipe.OperatorSpec
}

// ConfigFromRecipe maps a validated recipe onto a Config.
func ConfigFromRecipe(r *recipe.Recipe) (Config, error) {
	codec, err := compress.Parse(r.CacheCompress)
	if err != nil {
		return Config{}, err
	}
	return Config{
		WorkDir:       r.WorkDir,
		NP:            r.NP,
		UseCheckpoint: r.UseCheckpoint,
		CkptDir:       r.CkptDir,
		UseCache:      r.UseCache,
		CacheCompress: codec,
		OpenTracer:    r.Tracing(),
		TraceNum:      r.TraceNum,
		OpListToTrace: r.OpListToTrace,
		OpFusion:      r.OpFusion,
		Plan:          r.Specs(),
	}, nil
}

func (c *Config) applyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "./work"
	}
	if c.NP <= 0 {
		c.NP = 3
	}
	if c.CkptDir == "" {
		c.CkptDir = filepath.Join(c.WorkDir, "ckpt")
	}
	if c.CacheCompress == "" {
		c.CacheCompress = compress.None
	}
	if c.TraceNum <= 0 {
		c.TraceNum = 3
	}
}

func (c *Config) cacheDir() string { return filepath.Join(c.WorkDir, "cache") }

func (c *Config) traceDir() string { return filepath.Join(c.WorkDir, "trace") }
