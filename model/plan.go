package model

import (
	"errors"
	"fmt"
)

// ErrNoSourceSnapshot means the source dataset has no snapshots at all, so
// there is nothing to synchronize from.
var ErrNoSourceSnapshot = errors.New("source has no snapshots")

// DesyncError means the destination's checkpoint names a snapshot that no
// longer exists on the source. Planning an incremental is impossible, and
// planning a full transfer here could mask source-side data loss, so this
// requires operator intervention (see the -force-full flag).
type DesyncError struct {
	Dataset    DatasetName
	Checkpoint string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf(
		"destination of '%s' is synced to '%s', which no longer exists on the source; refusing to guess",
		e.Dataset, e.Checkpoint)
}

type PlanKind int

const (
	planInvalid PlanKind = iota
	UpToDate
	Full
	Incremental
)

func (k PlanKind) String() string {
	switch k {
	case UpToDate:
		return "up-to-date"
	case Full:
		return "full"
	case Incremental:
		return "incremental"
	default:
		return fmt.Sprintf("PlanKind(%d)", int(k))
	}
}

// TransferPlan is the planner's verdict for one sync pair: either nothing
// to do, a full transfer of Target, or an incremental transfer of the
// Base→Target delta.
type TransferPlan struct {
	Kind   PlanKind
	Base   *Snapshot
	Target *Snapshot
}

func (plan *TransferPlan) String() string {
	switch plan.Kind {
	case UpToDate:
		return "up-to-date"
	case Full:
		return fmt.Sprintf("full transfer of %s", plan.Target)
	case Incremental:
		return fmt.Sprintf("incremental transfer %s → %s", plan.Base, plan.Target)
	default:
		return "<invalid plan>"
	}
}

// Plan decides what transfer, if any, brings a destination with the given
// checkpoint up to date with the source snapshot history. The checkpoint is
// the name of the newest source snapshot known to be fully reflected at the
// destination; "" means the destination has never been synced (or its
// latest artifact is unverified, which we treat the same way).
//
// Plan is pure: it reads nothing and changes nothing, so it is safe to call
// repeatedly. Checkpoint names match source snapshots by exact string
// equality.
func Plan(source *Snapshots, checkpoint string) (*TransferPlan, error) {
	latest := source.Newest()
	if latest == nil {
		return nil, ErrNoSourceSnapshot
	}

	if checkpoint == "" {
		return &TransferPlan{Kind: Full, Target: latest}, nil
	}

	matched := source.Find(checkpoint)
	if matched == nil {
		return nil, &DesyncError{Dataset: latest.Dataset, Checkpoint: checkpoint}
	}

	if matched.Name == latest.Name {
		return &TransferPlan{Kind: UpToDate}, nil
	}

	return &TransferPlan{Kind: Incremental, Base: matched, Target: latest}, nil
}

// ForceFullPlan ignores any checkpoint and plans a full transfer of the
// newest source snapshot. It is the operator's escape hatch out of a
// desynchronized pair.
func ForceFullPlan(source *Snapshots) (*TransferPlan, error) {
	latest := source.Newest()
	if latest == nil {
		return nil, ErrNoSourceSnapshot
	}
	return &TransferPlan{Kind: Full, Target: latest}, nil
}
