package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"monks.co/syncd/config"
	"monks.co/syncd/db"
	"monks.co/syncd/env"
	"monks.co/syncd/logger"
	"monks.co/syncd/model"
	"monks.co/syncd/objectstore"
	"monks.co/syncd/progress"
	"monks.co/syncd/snitch"
	"monks.co/syncd/status"
	"monks.co/syncd/tracker"
)

// ErrBackendUnavailable means a required external tool or credential is
// missing. It is checked once up front and fails the whole run; per-pair
// errors never carry it.
var ErrBackendUnavailable = errors.New("required backend unavailable")

type Syncd struct {
	config     *config.Config
	env        *env.Env
	store      *objectstore.Client
	status     *status.Status
	history    *db.DB
	globalLogs logger.Logger
	strict     bool
	dryrun     bool
	forceFull  bool
}

func New(conf *config.Config, store *objectstore.Client, history *db.DB, strict, dryrun, forceFull bool) *Syncd {
	return &Syncd{
		config:     conf,
		env:        env.New(conf),
		store:      store,
		status:     status.New(),
		history:    history,
		globalLogs: logger.New("global"),
		strict:     strict || conf.Run.Strict,
		dryrun:     dryrun,
		forceFull:  forceFull,
	}
}

// DiscoverPairs lists every dataset under the configured root carrying a
// sync marker property. Replication pairs point at a replica dataset;
// backup pairs point at the configured bucket. Discovery runs fresh on
// every invocation; nothing about pairs is cached.
func (s *Syncd) DiscoverPairs(datasetFilter string) ([]*model.SyncPair, error) {
	replicas, err := s.env.Local.GetPairs(s.globalLogs,
		s.config.Local.Root, s.config.Local.ReplicateProperty, model.ReplicaDestination)
	if err != nil {
		return nil, fmt.Errorf("discovering replication pairs: %w", err)
	}
	backups, err := s.env.Local.GetPairs(s.globalLogs,
		s.config.Local.Root, s.config.Local.BackupProperty, model.BucketDestination)
	if err != nil {
		return nil, fmt.Errorf("discovering backup pairs: %w", err)
	}

	pairs := append(replicas, backups...)
	if datasetFilter == "" {
		return pairs, nil
	}
	var filtered []*model.SyncPair
	for _, pair := range pairs {
		if pair.Source.Path() == datasetFilter {
			filtered = append(filtered, pair)
		}
	}
	return filtered, nil
}

// preflight checks every backend the discovered pairs will need. A failure
// here aborts the run before any pair is touched.
func (s *Syncd) preflight(ctx context.Context, pairs []*model.SyncPair) error {
	needReplica, needBucket := false, false
	for _, pair := range pairs {
		switch pair.Kind {
		case model.ReplicaDestination:
			needReplica = true
		case model.BucketDestination:
			needBucket = true
		}
	}

	if err := s.env.Preflight(s.globalLogs, needReplica); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if needBucket {
		if s.store == nil {
			return fmt.Errorf("%w: backup pairs configured but no bucket in config", ErrBackendUnavailable)
		}
		if _, err := s.store.List(ctx, s.config.Bucket.Prefix); err != nil {
			return fmt.Errorf("%w: bucket '%s' unreachable: %w", ErrBackendUnavailable, s.store.Bucket(), err)
		}
	}

	return nil
}

// Run evaluates every discovered pair once: Discover → Plan → {up-to-date |
// transfer → commit} | desync: report and stop the pair. A failed pair is
// logged and skipped unless strict mode is on, in which case the run stops
// at the first failure. No state survives a run except what the
// destinations themselves record.
func (s *Syncd) Run(ctx context.Context, datasetFilter string) error {
	pairs, err := s.DiscoverPairs(datasetFilter)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		s.globalLogs.Printf("no sync pairs discovered")
		return nil
	}

	if err := s.preflight(ctx, pairs); err != nil {
		return err
	}

	allOK := true
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.globalLogs.Printf("processing %s", pair)
		if err := s.syncPair(ctx, pair); err != nil {
			allOK = false
			s.globalLogs.Printf("pair %s failed: %s", pair, err)
			if s.strict {
				return fmt.Errorf("syncing %s: %w", pair, err)
			}
			continue
		}
	}

	if allOK && !s.dryrun && s.config.Run.SnitchID != "" {
		s.globalLogs.Printf("alerting deadmanssnitch")
		if err := snitch.OK(s.config.Run.SnitchID); err != nil {
			s.globalLogs.Printf("snitch error: %v", err)
		}
	}

	if !allOK {
		return fmt.Errorf("some pairs failed")
	}
	return nil
}

func (s *Syncd) syncPair(ctx context.Context, pair *model.SyncPair) error {
	pairLogs := progress.NewProcessLogs()
	plog := pairLogs.Logger(pair.Source.Path())

	if !s.status.Acquire(pair.Destination) {
		return fmt.Errorf("a transfer to '%s' is already in flight", pair.Destination)
	}
	defer s.status.Release(pair.Destination)

	startedAt := time.Now()
	plan, moved, err := s.evaluatePair(ctx, plog, pair)
	s.record(ctx, plog, pairLogs, pair, startedAt, plan, moved, err)
	return err
}

// evaluatePair does the actual Plan → Transfer → Commit walk for one pair.
func (s *Syncd) evaluatePair(ctx context.Context, plog logger.Logger, pair *model.SyncPair) (*model.TransferPlan, int64, error) {
	source, err := s.env.Local.GetSnapshots(plog, pair.Source)
	if err != nil {
		return nil, 0, fmt.Errorf("reading source catalog: %w", err)
	}

	track, bucketTracker, err := s.destinationTracker(pair)
	if err != nil {
		return nil, 0, err
	}
	switch pair.Kind {
	case model.ReplicaDestination:
		if err := s.resumeIfIncomplete(ctx, plog, model.DatasetName(pair.Destination)); err != nil {
			return nil, 0, fmt.Errorf("handling incomplete transfer: %w", err)
		}
	case model.BucketDestination:
		bucketTracker.WarnInProgress(ctx, plog)
	}

	plan, err := s.planTransfer(ctx, plog, source, track)
	if err != nil {
		return nil, 0, err
	}

	if plan.Kind == model.UpToDate {
		plog.Printf("up to date; nothing to transfer")
		return plan, 0, nil
	}

	if s.dryrun {
		plog.Printf("[DRYRUN] would perform %s", plan)
		return plan, 0, nil
	}

	var moved int64
	switch pair.Kind {
	case model.ReplicaDestination:
		moved, err = s.executeReplication(ctx, plog, plan, model.DatasetName(pair.Destination))
	case model.BucketDestination:
		moved, err = s.executeBackup(ctx, plog, plan, bucketTracker)
	}
	if err != nil {
		return plan, moved, err
	}

	if err := track.Commit(ctx, plog, plan); err != nil {
		return plan, moved, fmt.Errorf("transfer succeeded but commit failed: %w", err)
	}

	plog.Printf("synced: %s, %s", plan, humanize.Bytes(uint64(moved)))
	return plan, moved, nil
}

// resumeIfIncomplete continues a previously interrupted receive before
// planning, so the catalog read that follows sees the true destination
// state. ZFS refuses some resume tokens after source-side changes; those
// partial receives are aborted and the stream restarts from the plan.
func (s *Syncd) resumeIfIncomplete(ctx context.Context, plog logger.Logger, dest model.DatasetName) error {
	exists, err := s.env.Replica.DatasetExists(plog, dest)
	if err != nil || !exists {
		return err
	}

	token, err := s.env.Replica.GetResumeToken(plog, dest)
	if err != nil {
		return fmt.Errorf("getting resume token for '%s': %w", dest, err)
	}
	if token == "" {
		return nil
	}

	if s.dryrun {
		plog.Printf("[DRYRUN] would resume interrupted transfer into '%s'", dest)
		return nil
	}

resume:
	if _, err := s.env.Resume(ctx, plog, token, dest); err != nil && strings.Contains(err.Error(), "contains partially-complete state") {
		plog.Printf("aborting resumable transfer")
		if err := s.env.Replica.AbortResumable(plog, dest); err != nil {
			return fmt.Errorf("aborting resumable on '%s': %w", dest, err)
		}
		plog.Printf("retrying resume")
		goto resume
	} else if err != nil {
		return fmt.Errorf("resuming transfer into '%s': %w", dest, err)
	}

	plog.Printf("resume complete")
	return nil
}

// record writes the pair's outcome to the history ledger, together with the
// pair's captured log, and reports it. Every outcome is reported; nothing
// no-ops silently.
func (s *Syncd) record(ctx context.Context, plog logger.Logger, pairLogs *progress.ProcessLogs, pair *model.SyncPair, startedAt time.Time, plan *model.TransferPlan, moved int64, runErr error) {
	outcome := "success"
	switch {
	case runErr != nil:
		outcome = "failed"
	case plan != nil && plan.Kind == model.UpToDate:
		outcome = "up-to-date"
	}

	plog.Printf("outcome for %s: %s (%s)", pair, outcome, humanize.Bytes(uint64(moved)))

	if s.dryrun || s.history == nil {
		return
	}

	t := &db.Transfer{
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Dataset:     pair.Source,
		Destination: pair.Destination,
		Bytes:       moved,
		Outcome:     outcome,
		Log:         pairLogs.String(),
	}
	if plan != nil {
		t.Kind = plan.Kind.String()
		if plan.Base != nil {
			t.Base = plan.Base.Name
		}
		if plan.Target != nil {
			t.Target = plan.Target.Name
		}
	}
	if err := s.history.RecordTransfer(ctx, t); err != nil {
		plog.Printf("recording history: %s", err)
	}
}

// PrintPlans reports, without transferring anything, what Run would do for
// each pair right now.
func (s *Syncd) PrintPlans(ctx context.Context, datasetFilter string) error {
	pairs, err := s.DiscoverPairs(datasetFilter)
	if err != nil {
		return err
	}
	if err := s.preflight(ctx, pairs); err != nil {
		return err
	}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Printf("======== %s ========\n", pair)

		plan, err := s.planPair(ctx, pair)
		if err != nil {
			fmt.Printf("  error: %s\n", err)
			continue
		}
		fmt.Printf("  %s\n", plan)
	}
	return nil
}

// planPair computes the plan Run would execute for this pair right now,
// without side effects.
func (s *Syncd) planPair(ctx context.Context, pair *model.SyncPair) (*model.TransferPlan, error) {
	plog := progress.NewProcessLogs().Logger(pair.Source.Path())

	source, err := s.env.Local.GetSnapshots(plog, pair.Source)
	if err != nil {
		return nil, fmt.Errorf("reading source catalog: %w", err)
	}

	track, _, err := s.destinationTracker(pair)
	if err != nil {
		return nil, err
	}

	return s.planTransfer(ctx, plog, source, track)
}

// destinationTracker builds the sync state tracker for a pair's
// destination. Both the run and plan subcommands go through here, so they
// cannot disagree about what a pair's destination means.
func (s *Syncd) destinationTracker(pair *model.SyncPair) (tracker.Tracker, *tracker.Bucket, error) {
	switch pair.Kind {
	case model.ReplicaDestination:
		return tracker.NewReplica(s.env.Replica, model.DatasetName(pair.Destination)), nil, nil
	case model.BucketDestination:
		if s.store == nil {
			return nil, nil, fmt.Errorf("pair names bucket '%s' but no bucket is configured", pair.Destination)
		}
		if pair.Destination != s.store.Bucket() {
			return nil, nil, fmt.Errorf("pair names bucket '%s' but the configured bucket is '%s'",
				pair.Destination, s.store.Bucket())
		}
		prefix := strings.TrimSuffix(s.config.Bucket.Prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		bt := tracker.NewBucket(s.store, prefix+pair.Source.FlatPath())
		return bt, bt, nil
	default:
		return nil, nil, fmt.Errorf("unknown destination kind %s", pair.Kind)
	}
}

// planTransfer reads the destination checkpoint and asks the planner what
// to do, honoring the -force-full override.
func (s *Syncd) planTransfer(ctx context.Context, plog logger.Logger, source *model.Snapshots, track tracker.Tracker) (*model.TransferPlan, error) {
	checkpoint, ok, err := track.Checkpoint(ctx, plog)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if !ok {
		checkpoint = ""
	}

	if s.forceFull {
		plog.Printf("ignoring checkpoint '%s' (-force-full)", checkpoint)
		return model.ForceFullPlan(source)
	}
	return model.Plan(source, checkpoint)
}
