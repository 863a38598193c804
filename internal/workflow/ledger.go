package workflow

import (
	"sort"
	"time"

	"expenseflow/internal/model"

	"github.com/google/uuid"
)

// Ledger is a claim's approval entries in creation order. Sequence never decreases along
// the slice, so each sequence group is a contiguous sub-slice.
type Ledger []model.ApprovalEntry

// Group returns the peer entries sharing sequence seq.
func (l Ledger) Group(seq int) []model.ApprovalEntry {
	lo := sort.Search(len(l), func(i int) bool { return l[i].Sequence >= seq })
	hi := sort.Search(len(l), func(i int) bool { return l[i].Sequence > seq })
	return l[lo:hi]
}

// NextStep returns the first sequence after seq, if any.
func (l Ledger) NextStep(seq int) (int, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].Sequence > seq })
	if i == len(l) {
		return 0, false
	}
	return l[i].Sequence, true
}

// AnyRejected reports whether any entry anywhere in the ledger was rejected.
func (l Ledger) AnyRejected() bool {
	for _, e := range l {
		if e.Status == model.EntryRejected {
			return true
		}
	}
	return false
}

func allApproved(entries []model.ApprovalEntry) bool {
	for _, e := range entries {
		if e.Status != model.EntryApproved {
			return false
		}
	}
	return true
}

// Pending locates the pending entry held by approverID. When the approver holds more
// than one, the entry in activeStep is preferred, then the earliest.
func (l Ledger) Pending(approverID uuid.UUID, activeStep int) (int, error) {
	found := -1
	for i, e := range l {
		if e.ApproverID != approverID || e.Status != model.EntryPending {
			continue
		}
		if e.Sequence == activeStep {
			return i, nil
		}
		if found < 0 {
			found = i
		}
	}
	if found < 0 {
		return -1, ErrNotAnApprover
	}
	return found, nil
}

// ApplyDecision records d on entry i. It does not touch claim-level state.
func (l Ledger) ApplyDecision(i int, d Decision, at time.Time) *model.ApprovalEntry {
	e := &l[i]
	if d.Action == ActionApprove {
		e.Status = model.EntryApproved
	} else {
		e.Status = model.EntryRejected
	}
	e.Comment = d.Comment
	decided := at
	e.DecidedAt = &decided
	return e
}
