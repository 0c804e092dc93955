package model

// DuplicateKind enumerates duplicate-detection verdicts.
type DuplicateKind int

// Duplicate verdicts.
const (
	DuplicateNone DuplicateKind = iota
	DuplicateExact
	DuplicateProbable
)

// String returns a human-readable name for the verdict.
func (k DuplicateKind) String() string {
	switch k {
	case DuplicateExact:
		return "exact duplicate"
	case DuplicateProbable:
		return "probable duplicate"
	default:
		return "unique"
	}
}

// DuplicateStatus is the per-candidate verdict produced by the duplicate
// detector. Similarity of 1.0 always carries the DuplicateExact kind.
type DuplicateStatus struct {
	MatchID    string
	Reason     string
	Kind       DuplicateKind
	Similarity float64
}

// IsDuplicate reports whether the candidate matched an existing record.
func (s DuplicateStatus) IsDuplicate() bool {
	return s.Kind != DuplicateNone
}
