package ops

import (
	"fmt"

	"github.com/kbukum/dataflow/op"
)

type builtin struct {
	name    string
	info    op.Info
	factory op.Factory
}

func builtins() []builtin {
	var all []builtin
	all = append(all, mappers()...)
	all = append(all, generators()...)
	all = append(all, filters()...)
	all = append(all, deduplicators()...)
	all = append(all, selectors()...)
	return all
}

// RegisterBuiltins registers every built-in operator in reg.
func RegisterBuiltins(reg *op.Registry) error {
	for _, b := range builtins() {
		if err := reg.Register(b.name, b.factory, b.info); err != nil {
			return fmt.Errorf("ops: %w", err)
		}
	}
	return nil
}

// newBase decodes args into the shared options and params, then returns
// the unbound base for name.
func newBase(name string, kind op.Kind, args map[string]any, params any) (op.Base, error) {
	opts := op.DefaultOptions()
	if err := op.DecodeArgs(name, args, &opts, params); err != nil {
		return op.Base{}, err
	}
	return op.NewBase(name, kind, opts), nil
}
