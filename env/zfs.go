package env

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"monks.co/syncd/logger"
	"monks.co/syncd/model"
)

// ZFS adapts one pool (local or behind ssh) to the catalog, estimation,
// and streaming operations the sync engine needs. All answers come back
// typed; nothing downstream ever re-parses command output.
type ZFS struct {
	x Executor
}

func NewZFS(x Executor) *ZFS {
	return &ZFS{x}
}

// Version reports the zfs userland version. Used as the preflight check
// that the tooling is present at all.
func (zfs *ZFS) Version(logger logger.Logger) (string, error) {
	out, err := zfs.x.Execf(logger, "zfs version")
	if err != nil {
		return "", fmt.Errorf("zfs version: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("zfs version: no output")
	}
	return out[0], nil
}

// GetSnapshots lists a dataset's snapshots, oldest first. The catalog's own
// creation order is preserved for equal timestamps.
func (zfs *ZFS) GetSnapshots(logger logger.Logger, dataset model.DatasetName) (*model.Snapshots, error) {
	rows, err := zfs.x.Execf(logger, "zfs list -H -p -t snapshot -o name,creation -s creation -d 1 %s", dataset.Path())
	if err != nil {
		return nil, fmt.Errorf("zfs list: %w", err)
	}
	snaps := model.NewSnapshots()
	for _, row := range rows {
		if row == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) != 2 {
			return nil, fmt.Errorf("unexpected snapshot row '%s'", row)
		}
		_, name, found := strings.Cut(cols[0], "@")
		if !found {
			return nil, fmt.Errorf("unexpected snapshot row '%s'", row)
		}
		seconds, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp '%s' (from '%s')", cols[1], cols[0])
		}
		snaps.Add(&model.Snapshot{
			Dataset:   dataset,
			Name:      name,
			CreatedAt: seconds,
		})
	}
	return snaps, nil
}

// DatasetExists reports whether the named dataset exists on this pool.
func (zfs *ZFS) DatasetExists(logger logger.Logger, dataset model.DatasetName) (bool, error) {
	_, err := zfs.x.Execf(logger, "zfs list -H -o name -d 0 %s", dataset.Path())
	if err != nil && strings.Contains(err.Error(), "does not exist") {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDataset creates the dataset and any missing ancestors.
func (zfs *ZFS) CreateDataset(logger logger.Logger, dataset model.DatasetName) error {
	if _, err := zfs.x.Execf(logger, "zfs create -p %s", dataset.Path()); err != nil {
		return err
	}
	return nil
}

// GetPairs discovers sync pairs: every dataset under root carrying the
// given user property forms a pair whose destination is the property's
// value. The property name itself is configuration; its value's format is
// the only convention the engine relies on.
func (zfs *ZFS) GetPairs(logger logger.Logger, root, property string, kind model.DestinationKind) ([]*model.SyncPair, error) {
	rows, err := zfs.x.Execf(logger, "zfs get -H -r -t filesystem -o name,value -s local,received %s %s", property, root)
	if err != nil {
		return nil, fmt.Errorf("zfs get %s: %w", property, err)
	}
	var pairs []*model.SyncPair
	for _, row := range rows {
		if row == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) != 2 {
			return nil, fmt.Errorf("unexpected property row '%s'", row)
		}
		if cols[1] == "-" || cols[1] == "" {
			continue
		}
		pair := &model.SyncPair{
			Source:      model.DatasetName(cols[0]),
			Kind:        kind,
			Destination: cols[1],
		}
		if err := pair.Validate(); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func (zfs *ZFS) GetResumeToken(logger logger.Logger, dataset model.DatasetName) (string, error) {
	out, err := zfs.x.Execf(logger, "zfs list -H -o receive_resume_token -S name -d 0 %s", dataset.Path())
	if err != nil {
		return "", fmt.Errorf("zfs list: %w\n%s", err, strings.Join(out, "\n"))
	}
	if len(out) == 0 {
		return "", nil
	}

	value := out[0]
	if value == "-" {
		return "", nil
	}

	return value, nil
}

func (zfs *ZFS) AbortResumable(logger logger.Logger, dataset model.DatasetName) error {
	if _, err := zfs.x.Execf(logger, "zfs receive -A %s", dataset.Path()); err != nil {
		return err
	}
	return nil
}

// EstimateSendSize dry-runs the send and returns the estimated stream size
// in bytes. A nil base estimates the full stream up to target; otherwise
// the base→target delta.
func (zfs *ZFS) EstimateSendSize(logger logger.Logger, base, target *model.Snapshot) (int64, error) {
	var rows []string
	var err error
	if base == nil {
		rows, err = zfs.x.Execf(logger, "zfs send -nP --raw %s", target)
	} else {
		rows, err = zfs.x.Execf(logger, "zfs send -nP --raw -i %s@%s %s", base.Dataset.Path(), base.Name, target)
	}
	if err != nil {
		return 0, fmt.Errorf("zfs send -nP: %w", err)
	}
	for _, row := range rows {
		cols := strings.Fields(row)
		if len(cols) == 2 && cols[0] == "size" {
			size, err := strconv.ParseInt(cols[1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parsing size '%s': %w", cols[1], err)
			}
			return size, nil
		}
	}
	return 0, fmt.Errorf("no size line in send estimate (%d rows)", len(rows))
}

// SendCommand builds the producing half of a transfer pipeline. A nil base
// produces the full stream; otherwise the incremental stream.
func (zfs *ZFS) SendCommand(base, target *model.Snapshot) *exec.Cmd {
	if base == nil {
		return zfs.x.Command("zfs", "send", "--raw", target.String())
	}
	return zfs.x.Command("zfs", "send", "--raw", "-i",
		fmt.Sprintf("%s@%s", base.Dataset.Path(), base.Name),
		target.String())
}

// SendResumeCommand resumes a previously interrupted send from its token.
func (zfs *ZFS) SendResumeCommand(token string) *exec.Cmd {
	return zfs.x.Command("zfs", "send", "--raw", "-t", token)
}

// ReceiveCommand builds the consuming half: a resumable receive into the
// destination dataset. The received snapshot only appears once the whole
// stream has arrived, which is what makes receive double as the commit.
func (zfs *ZFS) ReceiveCommand(dataset model.DatasetName) *exec.Cmd {
	return zfs.x.Command("zfs", "receive", "-s", "-F", dataset.Path())
}
