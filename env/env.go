package env

import (
	"context"
	"fmt"

	"monks.co/syncd/config"
	"monks.co/syncd/logger"
	"monks.co/syncd/model"
)

// Env holds the storage backends a run talks to: the local pool, always,
// and the replica pool when one is configured. The replica may live behind
// ssh or be a second pool on this host.
type Env struct {
	Local   *ZFS
	Replica *ZFS
}

func New(conf *config.Config) *Env {
	env := &Env{
		Local: NewZFS(Local),
	}
	if conf.Replica.SSHHost != "" {
		env.Replica = NewZFS(NewRemote(conf.Replica.SSHKey, conf.Replica.SSHHost))
	} else {
		env.Replica = NewZFS(Local)
	}
	return env
}

// TransferFull streams target's entire contents into the destination
// dataset on the replica. It returns the bytes that moved through the pipe.
// The received snapshot appears atomically on success; nothing is committed
// on failure.
func (env *Env) TransferFull(ctx context.Context, logger logger.Logger, target *model.Snapshot, dest model.DatasetName) (int64, error) {
	send := env.Local.SendCommand(nil, target)
	recv := env.Replica.ReceiveCommand(dest)
	return Pipe(ctx, logger, send, recv)
}

// TransferIncremental streams only the base→target delta.
func (env *Env) TransferIncremental(ctx context.Context, logger logger.Logger, base, target *model.Snapshot, dest model.DatasetName) (int64, error) {
	send := env.Local.SendCommand(base, target)
	recv := env.Replica.ReceiveCommand(dest)
	return Pipe(ctx, logger, send, recv)
}

// Resume continues an interrupted receive from its resume token.
func (env *Env) Resume(ctx context.Context, logger logger.Logger, token string, dest model.DatasetName) (int64, error) {
	send := env.Local.SendResumeCommand(token)
	recv := env.Replica.ReceiveCommand(dest)
	return Pipe(ctx, logger, send, recv)
}

// Preflight verifies the storage tooling is reachable on both ends before
// any pair is attempted. A failure here fails the whole run.
func (env *Env) Preflight(logger logger.Logger, needReplica bool) error {
	if _, err := env.Local.Version(logger); err != nil {
		return fmt.Errorf("local zfs unavailable: %w", err)
	}
	if needReplica {
		if _, err := env.Replica.Version(logger); err != nil {
			return fmt.Errorf("replica zfs unavailable: %w", err)
		}
	}
	return nil
}
