// Package tracker answers, per destination, the question "which source
// snapshot is fully reflected here?" and records the answer after a
// successful transfer. The replica backend derives it from the
// destination's own snapshot history; the bucket backend from object tags
// and metadata. Neither keeps any state in memory between runs.
package tracker

import (
	"context"

	"monks.co/syncd/logger"
	"monks.co/syncd/model"
)

// Tracker is the destination-side sync ledger for one pair.
type Tracker interface {
	// Checkpoint returns the name of the newest source snapshot verified
	// as fully reflected at the destination. ok is false when the
	// destination has never been synced or its latest artifact cannot be
	// trusted; that is not an error.
	Checkpoint(ctx context.Context, logger logger.Logger) (label string, ok bool, err error)

	// Commit durably records that plan's target now lives at the
	// destination. It must be the last step of a successful transfer, and
	// committing the same plan twice must be harmless.
	Commit(ctx context.Context, logger logger.Logger, plan *model.TransferPlan) error
}
