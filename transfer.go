package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"monks.co/syncd/logger"
	"monks.co/syncd/model"
	"monks.co/syncd/objectstore"
	"monks.co/syncd/tracker"
)

// Transfer failure classes. Nothing here is retried within a run; the
// destination is left uncommitted and the next run starts from a clean
// checkpoint read.
var (
	ErrEstimationFailed = errors.New("transfer size estimation failed")
	ErrStreamFailed     = errors.New("transfer stream failed")
)

// executeReplication runs one planned transfer into a replica dataset and
// returns the bytes that moved. Success means both ends of the
// send|receive pipeline exited zero; anything else leaves the destination
// uncommitted (a partial receive is invisible until resumed or aborted).
func (s *Syncd) executeReplication(ctx context.Context, logger logger.Logger, plan *model.TransferPlan, dest model.DatasetName) (int64, error) {
	estimate, err := s.env.Local.EstimateSendSize(logger, plan.Base, plan.Target)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEstimationFailed, err)
	}
	logger.Printf("%s, estimated %s", plan, humanize.Bytes(uint64(estimate)))

	if plan.Kind == model.Full {
		if err := s.ensureReplicaParent(logger, dest); err != nil {
			return 0, err
		}
	}

	var moved int64
	switch plan.Kind {
	case model.Full:
		moved, err = s.env.TransferFull(ctx, logger, plan.Target, dest)
	case model.Incremental:
		moved, err = s.env.TransferIncremental(ctx, logger, plan.Base, plan.Target, dest)
	default:
		return 0, fmt.Errorf("plan '%s' is not transferable", plan)
	}
	if err != nil {
		return moved, fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}

	logger.Printf("transferred %s (estimate was %s)",
		humanize.Bytes(uint64(moved)), humanize.Bytes(uint64(estimate)))
	return moved, nil
}

// ensureReplicaParent creates the destination's enclosing dataset on the
// replica when it is missing. `zfs receive` creates the destination itself
// but refuses to create its ancestors.
func (s *Syncd) ensureReplicaParent(logger logger.Logger, dest model.DatasetName) error {
	parent := dest.Parent()
	if parent == "" {
		return nil
	}
	exists, err := s.env.Replica.DatasetExists(logger, parent)
	if err != nil {
		return fmt.Errorf("checking replica dataset '%s': %w", parent, err)
	}
	if exists {
		return nil
	}
	logger.Printf("creating '%s' on the replica", parent)
	if err := s.env.Replica.CreateDataset(logger, parent); err != nil {
		return fmt.Errorf("creating replica dataset '%s': %w", parent, err)
	}
	return nil
}

// executeBackup streams one planned transfer into the object store. The
// artifact is uploaded with its descriptive metadata but NOT tagged
// complete; that is the tracker commit's job, afterwards. If either the
// producing send or the consuming upload fails, the multipart upload is
// aborted and nothing trustworthy is left under the key.
func (s *Syncd) executeBackup(ctx context.Context, logger logger.Logger, plan *model.TransferPlan, bt *tracker.Bucket) (int64, error) {
	estimate, err := s.env.Local.EstimateSendSize(logger, plan.Base, plan.Target)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEstimationFailed, err)
	}
	key := bt.ObjectKey(plan)
	logger.Printf("%s, estimated %s, uploading to %s", plan, humanize.Bytes(uint64(estimate)), key)

	send := s.env.Local.SendCommand(plan.Base, plan.Target)
	stdout, err := send.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: piping send: %w", ErrStreamFailed, err)
	}
	var stderr bytes.Buffer
	send.Stderr = &stderr

	if err := send.Start(); err != nil {
		return 0, fmt.Errorf("%w: starting send: %w", ErrStreamFailed, err)
	}

	moved, uploadErr := s.store.Upload(ctx, logger, key, stdout, estimate, bt.UploadMetadata(plan))
	if uploadErr != nil {
		send.Process.Kill()
		send.Wait()
		if errors.Is(uploadErr, objectstore.ErrSizeMismatch) {
			return moved, uploadErr
		}
		return moved, fmt.Errorf("%w: %w", ErrStreamFailed, uploadErr)
	}

	if err := send.Wait(); err != nil {
		return moved, fmt.Errorf("%w: send exited non-zero: %w\n%s", ErrStreamFailed, err, stderr.String())
	}

	logger.Printf("uploaded %s (estimate was %s)",
		humanize.Bytes(uint64(moved)), humanize.Bytes(uint64(estimate)))
	return moved, nil
}
