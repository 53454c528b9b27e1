package types

// CaseStatus represents the lifecycle status of a case. A case only moves
// forward: draft, then active once a workflow starts, then completed once the
// full pipeline has finished.
type CaseStatus string

const (
	CaseStatusDraft     CaseStatus = "draft"
	CaseStatusActive    CaseStatus = "active"
	CaseStatusCompleted CaseStatus = "completed"
)

func (s CaseStatus) IsValid() bool {
	return s.rank() >= 0
}

// Normalize returns the status, treating empty as CaseStatusDraft.
func (s CaseStatus) Normalize() CaseStatus {
	if s == "" {
		return CaseStatusDraft
	}
	return s
}

// Advances reports whether moving from s to next goes forward in the lifecycle
func (s CaseStatus) Advances(next CaseStatus) bool {
	return next.rank() > s.Normalize().rank()
}

func (s CaseStatus) rank() int {
	switch s {
	case CaseStatusDraft:
		return 0
	case CaseStatusActive:
		return 1
	case CaseStatusCompleted:
		return 2
	default:
		return -1
	}
}

func (s CaseStatus) String() string {
	return string(s)
}
