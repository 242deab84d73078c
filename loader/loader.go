package loader

import (
	"context"

	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/recipe"
)

// Options configures Load.
type Options struct {
	// Fusion merges adjacent stateless filters into fused filters.
	Fusion bool
	RunID  string
	Log    *logger.Logger
}

// Load resolves every spec against reg, builds the operators in declared
// order and binds each to its plan position. An unknown or unavailable
// operator fails the whole load before any operator is built.
func Load(ctx context.Context, reg *op.Registry, specs []recipe.OperatorSpec, opts Options) ([]op.Operator, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}

	factories := make([]op.Factory, len(specs))
	for i, s := range specs {
		f, err := reg.Lookup(s.Name)
		if err != nil {
			if appErr, ok := errors.AsAppError(err); ok {
				return nil, appErr.WithDetail("pipeline_index", i)
			}
			return nil, err
		}
		factories[i] = f
	}

	ops := make([]op.Operator, 0, len(specs))
	for i, s := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := factories[i](s.Args)
		if err != nil {
			if errors.IsAppError(err) {
				return nil, err
			}
			return nil, errors.InvalidConfig(s.Name, err.Error())
		}
		o.Bind(i, opts.RunID)
		ops = append(ops, o)
		log.Debug("operator loaded", logger.Fields(
			logger.FieldOperator, s.Name,
			logger.FieldPipelineIndex, i,
			"kind", string(o.Kind()),
		))
	}

	if opts.Fusion {
		fused := Fuse(ops)
		if len(fused) != len(ops) {
			log.Info("operators fused", logger.Fields("before", len(ops), "after", len(fused)))
		}
		ops = fused
	}
	return ops, nil
}

// Positions returns the status-table positions the plan reports under. A
// fused filter contributes one position per member.
func Positions(ops []op.Operator) []op.Ref {
	var refs []op.Ref
	for _, o := range ops {
		if m, ok := o.(interface{ Members() []op.Ref }); ok {
			refs = append(refs, m.Members()...)
			continue
		}
		refs = append(refs, op.Ref{Name: o.Name(), Index: o.Index()})
	}
	return refs
}
