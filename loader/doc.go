// Package loader turns recipe operator specs into bound operator instances
// and, when fusion is enabled, merges runs of adjacent filters so their
// stats are computed in one pass over the data.
package loader
