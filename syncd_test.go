package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"monks.co/syncd/config"
	"monks.co/syncd/env"
	"monks.co/syncd/logger"
	"monks.co/syncd/model"
	"monks.co/syncd/objectstore"
	"monks.co/syncd/status"
)

type fakeExecutor struct {
	responses map[string][]string
	errs      map[string]error
	commands  []string
}

var _ env.Executor = &fakeExecutor{}

func (f *fakeExecutor) Exec(_ logger.Logger, cmd ...string) ([]string, error) {
	key := strings.Join(cmd, " ")
	f.commands = append(f.commands, key)
	if err, has := f.errs[key]; has {
		return nil, err
	}
	return f.responses[key], nil
}

func (f *fakeExecutor) Execf(l logger.Logger, s string, args ...any) ([]string, error) {
	return f.Exec(l, strings.Fields(fmt.Sprintf(s, args...))...)
}

func (f *fakeExecutor) Command(cmd ...string) *exec.Cmd {
	return exec.Command(cmd[0], cmd[1:]...)
}

func newTestSyncd(local, replica *fakeExecutor, store *objectstore.Client) *Syncd {
	return &Syncd{
		config: &config.Config{},
		env: &env.Env{
			Local:   env.NewZFS(local),
			Replica: env.NewZFS(replica),
		},
		store:      store,
		status:     status.New(),
		globalLogs: logger.New("test"),
	}
}

func TestPlanPair_RejectsUnconfiguredBucket(t *testing.T) {
	s := newTestSyncd(&fakeExecutor{}, &fakeExecutor{}, nil)
	pair := &model.SyncPair{Source: "tank/home", Kind: model.BucketDestination, Destination: "backups"}

	if _, err := s.planPair(context.Background(), pair); err == nil {
		t.Fatal("Expected an error for a backup pair with no bucket configured")
	} else if !strings.Contains(err.Error(), "no bucket is configured") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPlanPair_RejectsBucketNameMismatch(t *testing.T) {
	store := objectstore.NewWithAPI(nil, "backups", 5*1024*1024, false)
	s := newTestSyncd(&fakeExecutor{}, &fakeExecutor{}, store)
	pair := &model.SyncPair{Source: "tank/home", Kind: model.BucketDestination, Destination: "elsewhere"}

	if _, err := s.planPair(context.Background(), pair); err == nil {
		t.Fatal("Expected an error for a pair naming a different bucket")
	} else if !strings.Contains(err.Error(), "configured bucket") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPlanPair_ForceFullOverridesCheckpoint(t *testing.T) {
	local := &fakeExecutor{responses: map[string][]string{
		"zfs list -H -p -t snapshot -o name,creation -s creation -d 1 tank/home": {
			"tank/home@2024-01-01\t1704067200",
			"tank/home@2024-02-01\t1706745600",
		},
	}}
	replica := &fakeExecutor{responses: map[string][]string{
		"zfs list -H -o name -d 0 backup/tank/home": {"backup/tank/home"},
		"zfs list -H -p -t snapshot -o name,creation -s creation -d 1 backup/tank/home": {
			"backup/tank/home@2024-02-01\t1706745600",
		},
	}}
	pair := &model.SyncPair{Source: "tank/home", Kind: model.ReplicaDestination, Destination: "backup/tank/home"}

	s := newTestSyncd(local, replica, nil)
	plan, err := s.planPair(context.Background(), pair)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != model.UpToDate {
		t.Fatalf("Expected up-to-date without the override, got %s", plan)
	}

	s.forceFull = true
	plan, err = s.planPair(context.Background(), pair)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != model.Full || plan.Target.Name != "2024-02-01" {
		t.Errorf("Expected a forced full transfer of the newest snapshot, got %s", plan)
	}
}

func TestEnsureReplicaParent(t *testing.T) {
	replica := &fakeExecutor{errs: map[string]error{
		"zfs list -H -o name -d 0 backup/tank": fmt.Errorf("cannot open 'backup/tank': dataset does not exist"),
	}}
	s := newTestSyncd(&fakeExecutor{}, replica, nil)

	if err := s.ensureReplicaParent(s.globalLogs, "backup/tank/home"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "zfs create -p backup/tank"
	if len(replica.commands) != 2 || replica.commands[1] != want {
		t.Errorf("Expected '%s' after the existence check, got %v", want, replica.commands)
	}

	// already present: nothing is created
	replica = &fakeExecutor{responses: map[string][]string{
		"zfs list -H -o name -d 0 backup/tank": {"backup/tank"},
	}}
	s = newTestSyncd(&fakeExecutor{}, replica, nil)
	if err := s.ensureReplicaParent(s.globalLogs, "backup/tank/home"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(replica.commands) != 1 {
		t.Errorf("Expected only the existence check, got %v", replica.commands)
	}

	// top-level destination has no parent to create
	s = newTestSyncd(&fakeExecutor{}, &fakeExecutor{}, nil)
	if err := s.ensureReplicaParent(s.globalLogs, "backup"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
