package op

// Kind classifies an operator by the shape of work it does.
type Kind string

const (
	// KindMapper edits records one-to-one.
	KindMapper Kind = "mapper"
	// KindFilter computes stats and keeps records that pass a predicate.
	KindFilter Kind = "filter"
	// KindDeduplicator hashes records and removes duplicates.
	KindDeduplicator Kind = "deduplicator"
	// KindSelector picks a subset of the dataset as a whole.
	KindSelector Kind = "selector"
)

// Valid reports whether k is one of the four kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindMapper, KindFilter, KindDeduplicator, KindSelector:
		return true
	}
	return false
}

// Status is the lifecycle state of one operator position in a run.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// IsTerminal reports whether s is Success or Error.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}
