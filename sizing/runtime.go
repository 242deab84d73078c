package sizing

import (
	"context"
	"math"

	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
)

const eps = 1e-9

// Requirements are an operator's declared resource hints for one pass.
type Requirements struct {
	Name  string
	Index int
	// NumProc, when positive, is honored verbatim.
	NumProc int
	// MaxProc caps a derived count; zero means no cap.
	MaxProc        int
	CPURequired    float64
	MemRequiredGB  float64
	UseAccelerator bool
}

// RuntimeNP picks the worker count for one operator invocation against the
// accountant's current snapshot. The snapshot is read on every call and
// never cached between operators.
func RuntimeNP(ctx context.Context, acct Accountant, req Requirements, log *logger.Logger) (int, error) {
	if req.NumProc > 0 {
		logChosen(log, req, req.NumProc, nil)
		return req.NumProc, nil
	}

	budget, err := acct.Available(ctx, Request{
		CPU:         req.CPURequired,
		MemoryGB:    req.MemRequiredGB,
		Accelerator: req.UseAccelerator,
	})
	if err != nil {
		return 0, errors.ResourceAccounting(err)
	}
	budget = budget.clamp()

	var np int
	if req.UseAccelerator && budget.Accelerators > 0 {
		np = acceleratorNP(req, budget)
	} else {
		np = cpuNP(req, budget)
	}
	if req.MaxProc > 0 && np > req.MaxProc {
		np = req.MaxProc
	}
	if np < 1 {
		np = 1
	}
	logChosen(log, req, np, &budget)
	return np, nil
}

func cpuNP(req Requirements, b Budget) int {
	cpu := req.CPURequired
	if cpu <= 0 {
		cpu = 1
	}
	np := math.Floor(b.CPU/cpu + eps)
	if req.MemRequiredGB > 0 {
		np = math.Min(np, math.Floor(b.MemoryGB/req.MemRequiredGB + eps))
	}
	return int(np)
}

func acceleratorNP(req Requirements, b Budget) int {
	if req.MemRequiredGB <= 0 {
		return b.Accelerators
	}
	perDevice := math.Floor(b.AcceleratorMemGB/req.MemRequiredGB + eps)
	return int(perDevice) * b.Accelerators
}

func logChosen(log *logger.Logger, req Requirements, np int, b *Budget) {
	if log == nil {
		return
	}
	fields := logger.Fields(
		logger.FieldOperator, req.Name,
		logger.FieldPipelineIndex, req.Index,
		logger.FieldNumProc, np,
	)
	if b != nil {
		fields["cpu_available"] = b.CPU
		fields["mem_available"] = FormatGB(b.MemoryGB)
		if req.UseAccelerator {
			fields["accelerators"] = b.Accelerators
		}
	} else {
		fields["source"] = "num_proc"
	}
	log.Info("operator worker count", fields)
}
