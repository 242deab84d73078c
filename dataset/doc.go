// Package dataset is the in-process record store operators run against.
//
// A Dataset is immutable: MapBatches, Filter and the column helpers return a
// new value and never touch the receiver, so the value after operator k is a
// valid checkpoint. Parallel passes run on an errgroup bounded to the worker
// count chosen for the operator, and always reassemble results in input order.
package dataset
