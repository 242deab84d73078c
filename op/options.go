package op

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/sizing"
)

// Options are the construction options every operator accepts.
type Options struct {
	TextKey  string `mapstructure:"text_key"`
	ImageKey string `mapstructure:"image_key"`
	AudioKey string `mapstructure:"audio_key"`
	VideoKey string `mapstructure:"video_key"`
	// NumProc is the explicit worker count; zero derives it at run time.
	NumProc     int     `mapstructure:"num_proc"`
	CPURequired float64 `mapstructure:"cpu_required"`
	// MemRequired is a number in GB or a size string such as "2GB".
	MemRequired any    `mapstructure:"mem_required"`
	Accelerator string `mapstructure:"accelerator"`
	BatchSize   int    `mapstructure:"batch_size"`
	// StatsExportPath, for filters, receives the computed stats as JSONL.
	StatsExportPath string `mapstructure:"stats_export_path"`

	// MemRequiredGB is MemRequired normalized by DecodeArgs.
	MemRequiredGB float64 `mapstructure:"-"`
}

// DefaultOptions returns the defaults every operator starts from.
func DefaultOptions() Options {
	return Options{
		TextKey:     "text",
		ImageKey:    "images",
		AudioKey:    "audios",
		VideoKey:    "videos",
		CPURequired: 1,
		Accelerator: "cpu",
		BatchSize:   dataset.DefaultBatchSize,
	}
}

// UseAccelerator reports whether the operator asked for an accelerator.
func (o Options) UseAccelerator() bool {
	return o.Accelerator != "" && o.Accelerator != "cpu"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeArgs decodes a recipe argument map into opts and, when params is
// non-nil, into the operator-specific params struct. Values are weakly
// typed, so "3" decodes into an int. Keys neither target knows are
// rejected, and params are checked against their `validate` tags.
func DecodeArgs(name string, args map[string]any, opts *Options, params any) error {
	usedByOpts, err := decodeInto(args, opts)
	if err != nil {
		return errors.InvalidConfig(name, err.Error())
	}
	gb, err := sizing.ParseMemGB(opts.MemRequired)
	if err != nil {
		return errors.InvalidConfig(name+".mem_required", err.Error())
	}
	opts.MemRequiredGB = gb
	if opts.BatchSize <= 0 {
		opts.BatchSize = dataset.DefaultBatchSize
	}
	if opts.CPURequired < 0 || opts.NumProc < 0 {
		return errors.InvalidConfig(name, "num_proc and cpu_required must be non-negative")
	}

	usedByParams := map[string]bool{}
	if params != nil {
		if usedByParams, err = decodeInto(args, params); err != nil {
			return errors.InvalidConfig(name, err.Error())
		}
		if err := validate.Struct(params); err != nil {
			return errors.InvalidConfig(name, err.Error())
		}
	}

	var unknown []string
	for k := range args {
		if !usedByOpts[k] && !usedByParams[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.InvalidConfig(name, fmt.Sprintf("unknown arguments: %s", strings.Join(unknown, ", ")))
	}
	return nil
}

func decodeInto(args map[string]any, target any) (map[string]bool, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           target,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(args); err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(md.Keys))
	for _, k := range md.Keys {
		used[k] = true
	}
	return used, nil
}
