// Package op defines the operator taxonomy of a pipeline run: mappers,
// filters, deduplicators and selectors, the fault-containment guards that
// wrap their per-record and per-batch work, and the registry that resolves
// operator names to factories.
//
// Concrete operators supply only their logic:
//
//	type trim struct{ key string }
//
//	func (t trim) Process(_ context.Context, r dataset.Record) (dataset.Record, error) {
//	    r[t.key] = strings.TrimSpace(r.String(t.key))
//	    return r, nil
//	}
//
//	m := op.NewMapper(op.NewBase("trim_whitespace_mapper", op.KindMapper, opts), trim{key: opts.TextKey})
//
// The shared run state machine (status reporting, worker sizing, spans,
// tracing and metrics) lives in Base.Execute and is identical for every kind.
package op
