package tracker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monks.co/syncd/env"
	"monks.co/syncd/logger"
	"monks.co/syncd/model"
)

type fakeExecutor struct {
	responses map[string][]string
	errs      map[string]error
}

var _ env.Executor = &fakeExecutor{}

func (f *fakeExecutor) Exec(_ logger.Logger, cmd ...string) ([]string, error) {
	key := strings.Join(cmd, " ")
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

func TestReplica_CheckpointMissingDataset(t *testing.T) {
	x := &fakeExecutor{errs: map[string]error{
		"zfs list -H -o name -d 0 tank/backup": fmt.Errorf("cannot open 'tank/backup': dataset does not exist"),
	}}
	r := NewReplica(env.NewZFS(x), "tank/backup")

	_, ok, err := r.Checkpoint(context.Background(), testLog)
	require.NoError(t, err)
	assert.False(t, ok, "a missing destination has no checkpoint")
}

func TestReplica_CheckpointEmptyDataset(t *testing.T) {
	x := &fakeExecutor{responses: map[string][]string{
		"zfs list -H -o name -d 0 tank/backup": {"tank/backup"},
	}}
	r := NewReplica(env.NewZFS(x), "tank/backup")

	_, ok, err := r.Checkpoint(context.Background(), testLog)
	require.NoError(t, err)
	assert.False(t, ok, "a destination with no snapshots has no checkpoint")
}

func TestReplica_CheckpointNewestSnapshot(t *testing.T) {
	x := &fakeExecutor{responses: map[string][]string{
		"zfs list -H -o name -d 0 tank/backup": {"tank/backup"},
		"zfs list -H -p -t snapshot -o name,creation -s creation -d 1 tank/backup": {
			"tank/backup@2024-01-01\t1704067200",
			"tank/backup@2024-02-01\t1706745600",
		},
	}}
	r := NewReplica(env.NewZFS(x), "tank/backup")

	label, ok, err := r.Checkpoint(context.Background(), testLog)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-02-01", label)
}

func TestReplica_CommitVerifiesReceivedSnapshot(t *testing.T) {
	x := &fakeExecutor{responses: map[string][]string{
		"zfs list -H -p -t snapshot -o name,creation -s creation -d 1 tank/backup": {
			"tank/backup@2024-02-01\t1706745600",
		},
	}}
	r := NewReplica(env.NewZFS(x), "tank/backup")

	plan := &model.TransferPlan{
		Kind:   model.Full,
		Target: &model.Snapshot{Dataset: "tank/home", Name: "2024-02-01", CreatedAt: 1706745600},
	}
	assert.NoError(t, r.Commit(context.Background(), testLog, plan))

	missing := &model.TransferPlan{
		Kind:   model.Full,
		Target: &model.Snapshot{Dataset: "tank/home", Name: "2024-03-01", CreatedAt: 1709251200},
	}
	err := r.Commit(context.Background(), testLog, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing received snapshot")
}
