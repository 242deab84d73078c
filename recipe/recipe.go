package recipe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dataflow/errors"
)

// OperatorSpec names an operator and its arguments as written in a recipe.
type OperatorSpec struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Recipe is a pipeline request: where the data comes from, the ordered
// operators to apply, and where the result goes.
type Recipe struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Type        string `mapstructure:"type"`
	ProjectName string `mapstructure:"project_name"`

	DatasetPath string   `mapstructure:"dataset_path" validate:"required"`
	ExportPath  string   `mapstructure:"export_path" validate:"required"`
	RepoID      string   `mapstructure:"repo_id"`
	Branch      string   `mapstructure:"branch"`
	WorkDir     string   `mapstructure:"work_dir"`
	NP          int      `mapstructure:"np" validate:"gte=1"`
	TextKeys    []string `mapstructure:"text_keys"`
	Suffixes    []string `mapstructure:"suffixes"`

	UseCheckpoint bool   `mapstructure:"use_checkpoint"`
	CkptDir       string `mapstructure:"ckpt_dir"`
	UseCache      bool   `mapstructure:"use_cache"`
	CacheCompress string `mapstructure:"cache_compress" validate:"omitempty,oneof=none gzip zstd lz4"`

	OpenTracer    *bool    `mapstructure:"open_tracer"`
	TraceNum      int      `mapstructure:"trace_num" validate:"gte=0"`
	OpListToTrace []string `mapstructure:"op_list_to_trace"`
	OpFusion      bool     `mapstructure:"op_fusion"`

	KeepStatsInResDS  bool `mapstructure:"keep_stats_in_res_ds"`
	KeepHashesInResDS bool `mapstructure:"keep_hashes_in_res_ds"`
	ExportShardSize   int  `mapstructure:"export_shard_size" validate:"gte=0"`
	ExportInParallel  bool `mapstructure:"export_in_parallel"`

	Process []any `mapstructure:"process" validate:"required,min=1"`

	specs []OperatorSpec
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidInput("recipe", err.Error())
	}
	return Parse(data)
}

// Parse decodes a YAML recipe. Scalar values are weakly typed, so np: '3'
// and open_tracer: 'true' are accepted.
func Parse(data []byte) (*Recipe, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.InvalidConfig("recipe", fmt.Sprintf("parsing yaml: %v", err))
	}
	r := &Recipe{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           r,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errors.InvalidConfig("recipe", err.Error())
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyDefaults fills unset fields.
func (r *Recipe) ApplyDefaults() {
	if r.NP == 0 {
		r.NP = 3
	}
	if r.OpenTracer == nil {
		on := true
		r.OpenTracer = &on
	}
	if r.TraceNum == 0 {
		r.TraceNum = 3
	}
	if r.CacheCompress == "" {
		r.CacheCompress = "none"
	}
	if r.WorkDir == "" {
		r.WorkDir = "./work"
	}
	if r.CkptDir == "" {
		r.CkptDir = filepath.Join(r.WorkDir, "ckpt")
	}
	if len(r.Suffixes) == 0 {
		r.Suffixes = []string{".jsonl", ".json", ".csv", ".txt"}
	}
}

// Validate checks field constraints and the shape of the process list.
func (r *Recipe) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.InvalidConfig("recipe", err.Error())
	}
	specs, err := parseProcess(r.Process)
	if err != nil {
		return err
	}
	r.specs = specs
	return nil
}

// Tracing reports whether the tracer is enabled.
func (r *Recipe) Tracing() bool { return r.OpenTracer == nil || *r.OpenTracer }

// TextKey returns the primary text column.
func (r *Recipe) TextKey() string {
	if len(r.TextKeys) > 0 && r.TextKeys[0] != "" {
		return r.TextKeys[0]
	}
	return "text"
}

// Specs returns the ordered operator specs. Specs without a text_key
// inherit the recipe's primary text key.
func (r *Recipe) Specs() []OperatorSpec {
	out := make([]OperatorSpec, len(r.specs))
	for i, s := range r.specs {
		args := make(map[string]any, len(s.Args)+1)
		for k, v := range s.Args {
			args[k] = v
		}
		if _, ok := args["text_key"]; !ok && len(r.TextKeys) > 0 {
			args["text_key"] = r.TextKey()
		}
		out[i] = OperatorSpec{Name: s.Name, Args: args}
	}
	return out
}

// parseProcess turns the process list into specs. Every entry must be a
// single-key mapping from operator name to its arguments (or nothing).
func parseProcess(items []any) ([]OperatorSpec, error) {
	specs := make([]OperatorSpec, 0, len(items))
	for i, item := range items {
		var m map[string]any
		switch t := item.(type) {
		case string:
			m = map[string]any{t: nil}
		case map[string]any:
			m = t
		default:
			return nil, errors.InvalidConfig(fmt.Sprintf("process[%d]", i), fmt.Sprintf("unexpected entry of type %T", item))
		}
		if len(m) != 1 {
			return nil, errors.InvalidConfig(fmt.Sprintf("process[%d]", i), "each entry must name exactly one operator")
		}
		for name, v := range m {
			spec := OperatorSpec{Name: name, Args: map[string]any{}}
			switch a := v.(type) {
			case nil:
			case map[string]any:
				spec.Args = a
			default:
				return nil, errors.InvalidConfig(fmt.Sprintf("process[%d].%s", i, name), "arguments must be a mapping")
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}
