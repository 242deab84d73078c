package sizing

import (
	"context"
	"runtime"
)

// Request is what an operator asks of the resource pool per worker.
type Request struct {
	CPU         float64
	MemoryGB    float64
	Accelerator bool
}

// Budget is the currently available capacity of the host pool.
type Budget struct {
	CPU              float64
	MemoryGB         float64
	Accelerators     int
	AcceleratorMemGB float64
}

// clamp keeps every field non-negative.
func (b Budget) clamp() Budget {
	if b.CPU < 0 {
		b.CPU = 0
	}
	if b.MemoryGB < 0 {
		b.MemoryGB = 0
	}
	if b.Accelerators < 0 {
		b.Accelerators = 0
	}
	if b.AcceleratorMemGB < 0 {
		b.AcceleratorMemGB = 0
	}
	return b
}

// Accountant reports the capacity currently available to a run.
// Implementations must return a conservative, never negative, budget.
type Accountant interface {
	Available(ctx context.Context, req Request) (Budget, error)
}

// AccountantFunc adapts a function to Accountant.
type AccountantFunc func(ctx context.Context, req Request) (Budget, error)

// Available calls f.
func (f AccountantFunc) Available(ctx context.Context, req Request) (Budget, error) {
	return f(ctx, req)
}

// StaticAccountant always reports the same budget.
type StaticAccountant struct {
	Budget Budget
}

// Available returns the fixed budget.
func (s StaticAccountant) Available(_ context.Context, _ Request) (Budget, error) {
	return s.Budget.clamp(), nil
}

// Config describes what the host cannot discover by itself.
type Config struct {
	// Accelerators is the number of accelerator devices on the host.
	Accelerators int `yaml:"accelerators" mapstructure:"accelerators"`
	// AcceleratorMemGB is the free memory of the smallest device.
	AcceleratorMemGB float64 `yaml:"accelerator_mem_gb" mapstructure:"accelerator_mem_gb"`
	// ReserveRatio keeps a share of CPU and memory out of every budget.
	ReserveRatio float64 `yaml:"reserve_ratio" mapstructure:"reserve_ratio"`
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	if c.ReserveRatio < 0 || c.ReserveRatio >= 1 {
		c.ReserveRatio = 0
	}
}

// HostAccountant reads live capacity from the local host.
type HostAccountant struct {
	cfg     Config
	freeMem func() (float64, error)
}

// NewHostAccountant creates an accountant for the local host.
func NewHostAccountant(cfg Config) *HostAccountant {
	cfg.ApplyDefaults()
	return &HostAccountant{cfg: cfg, freeMem: freeMemoryGB}
}

// Available reports the host's CPU count, free memory and configured
// accelerators, minus the configured reserve.
func (h *HostAccountant) Available(ctx context.Context, _ Request) (Budget, error) {
	if err := ctx.Err(); err != nil {
		return Budget{}, err
	}
	mem, err := h.freeMem()
	if err != nil {
		return Budget{}, err
	}
	keep := 1 - h.cfg.ReserveRatio
	b := Budget{
		CPU:              float64(runtime.NumCPU()) * keep,
		MemoryGB:         mem * keep,
		Accelerators:     h.cfg.Accelerators,
		AcceleratorMemGB: h.cfg.AcceleratorMemGB,
	}
	return b.clamp(), nil
}
