package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"monks.co/syncd/logger"
	"monks.co/syncd/model"
	"monks.co/syncd/objectstore"
)

// Object naming and marker conventions for the bucket backend. The object
// key encodes the snapshot label; the tag marks completion; the metadata
// lets a future run reconstruct the checkpoint without a separate index.
const (
	StatusTag     = "syncd-status"
	StatusSuccess = "success"

	MetaSnapshot = "syncd-snapshot"
	MetaBase     = "syncd-base"
	MetaKind     = "syncd-kind"
)

var _ Tracker = &Bucket{}

// Bucket tracks sync state for dataset→object-store backup. The checkpoint
// is carried by the most recent object under the pair's prefix, and only
// counts when that object is tagged as successfully completed: an upload
// that died before tagging is debris, not a baseline.
type Bucket struct {
	store  *objectstore.Client
	prefix string
}

// NewBucket builds a tracker for one pair. prefix is the pair's object
// "directory": the configured bucket prefix joined with the dataset's
// flattened path.
func NewBucket(store *objectstore.Client, prefix string) *Bucket {
	return &Bucket{store: store, prefix: strings.TrimSuffix(prefix, "/") + "/"}
}

// Prefix returns the pair's object directory.
func (b *Bucket) Prefix() string {
	return b.prefix
}

// ObjectKey names the artifact a plan uploads: <label>_full for a full
// stream, <label>_incr_<base> for an incremental.
func (b *Bucket) ObjectKey(plan *model.TransferPlan) string {
	switch plan.Kind {
	case model.Incremental:
		return fmt.Sprintf("%s%s_incr_%s", b.prefix, plan.Target.Name, plan.Base.Name)
	default:
		return fmt.Sprintf("%s%s_full", b.prefix, plan.Target.Name)
	}
}

// UploadMetadata is attached to the artifact at upload time, before any
// commit: metadata describes what the object encodes, the tag vouches that
// all of it arrived.
func (b *Bucket) UploadMetadata(plan *model.TransferPlan) map[string]string {
	meta := map[string]string{
		MetaSnapshot: plan.Target.Name,
		MetaKind:     plan.Kind.String(),
	}
	if plan.Base != nil {
		meta[MetaBase] = plan.Base.Name
	}
	return meta
}

func (b *Bucket) Checkpoint(ctx context.Context, logger logger.Logger) (string, bool, error) {
	objects, err := b.store.List(ctx, b.prefix)
	if err != nil {
		return "", false, fmt.Errorf("scanning '%s': %w", b.prefix, err)
	}
	if len(objects) == 0 {
		return "", false, nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	latest := objects[0]

	status, err := b.store.GetTag(ctx, latest.Key, StatusTag)
	if err != nil {
		return "", false, fmt.Errorf("reading status of '%s': %w", latest.Key, err)
	}
	if status != StatusSuccess {
		logger.Printf("warning: latest artifact '%s' has status '%s', not a valid checkpoint", latest.Key, status)
		return "", false, nil
	}

	meta, err := b.store.Metadata(ctx, latest.Key)
	if err != nil {
		return "", false, fmt.Errorf("reading metadata of '%s': %w", latest.Key, err)
	}
	label := meta[MetaSnapshot]
	if label == "" {
		logger.Printf("warning: artifact '%s' carries no snapshot metadata, not a valid checkpoint", latest.Key)
		return "", false, nil
	}

	return label, true, nil
}

// Commit tags the uploaded artifact as complete. Re-tagging with the same
// value is a no-op, so commit is idempotent.
func (b *Bucket) Commit(ctx context.Context, logger logger.Logger, plan *model.TransferPlan) error {
	key := b.ObjectKey(plan)
	if err := b.store.SetTag(ctx, key, StatusTag, StatusSuccess); err != nil {
		return fmt.Errorf("committing '%s': %w", key, err)
	}
	logger.Printf("committed %s", key)
	return nil
}

// WarnInProgress logs an advisory warning for multipart uploads a previous
// run left open under the pair's prefix.
func (b *Bucket) WarnInProgress(ctx context.Context, logger logger.Logger) {
	keys, err := b.store.ListInProgressUploads(ctx, b.prefix)
	if err != nil {
		logger.Printf("warning: could not list in-progress uploads: %s", err)
		return
	}
	for _, key := range keys {
		logger.Printf("warning: in-progress multipart upload left behind at '%s'", key)
	}
}
