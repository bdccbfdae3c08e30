package tracker

import (
	"context"
	"fmt"

	"monks.co/syncd/env"
	"monks.co/syncd/logger"
	"monks.co/syncd/model"
)

var _ Tracker = &Replica{}

// Replica tracks sync state for dataset→dataset replication. The
// destination's own snapshot list is the ledger: `zfs receive` creates the
// received snapshot atomically on success, so the destination's newest
// snapshot is exactly the newest fully-transferred one.
type Replica struct {
	zfs  *env.ZFS
	dest model.DatasetName
}

func NewReplica(zfs *env.ZFS, dest model.DatasetName) *Replica {
	return &Replica{zfs: zfs, dest: dest}
}

func (r *Replica) Checkpoint(ctx context.Context, logger logger.Logger) (string, bool, error) {
	exists, err := r.zfs.DatasetExists(logger, r.dest)
	if err != nil {
		return "", false, fmt.Errorf("checking '%s': %w", r.dest, err)
	}
	if !exists {
		return "", false, nil
	}

	snaps, err := r.zfs.GetSnapshots(logger, r.dest)
	if err != nil {
		return "", false, fmt.Errorf("listing '%s': %w", r.dest, err)
	}
	newest := snaps.Newest()
	if newest == nil {
		return "", false, nil
	}
	return newest.Name, true, nil
}

// Commit verifies the received snapshot actually exists at the destination.
// The receive already was the durable write; this only refuses to report
// success for a transfer the destination does not reflect.
func (r *Replica) Commit(ctx context.Context, logger logger.Logger, plan *model.TransferPlan) error {
	snaps, err := r.zfs.GetSnapshots(logger, r.dest)
	if err != nil {
		return fmt.Errorf("listing '%s': %w", r.dest, err)
	}
	if snaps.Find(plan.Target.Name) == nil {
		return fmt.Errorf("'%s' is missing received snapshot '%s'", r.dest, plan.Target.Name)
	}
	return nil
}
