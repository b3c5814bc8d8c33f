package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
	"snap-confine-go/strutil"
)

// procRoot is the procfs mount point, replaceable by tests.
var procRoot = "/proc"

// trackingDir returns the per-snap tracking hierarchy under the v1
// freezer. The freezer feature itself is never exercised; the hierarchy
// only records which processes belong to the snap.
func trackingDir(snapName string) string {
	return filepath.Join(cgroupRoot, "freezer", "snap."+snapName)
}

// JoinTracking creates the tracking hierarchy for the snap and moves
// pid into it.
func JoinTracking(snapName string, pid int) error {
	err := CreateAndJoin(filepath.Join(cgroupRoot, "freezer"), "snap."+snapName, pid)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindTracking, "join-tracking",
			"cannot track processes of snap "+strutil.Quote(snapName))
	}
	return nil
}

// IsTrackingOccupied reports whether any process recorded in the snap's
// tracking hierarchy is still alive. A missing hierarchy means nothing
// is tracked.
func IsTrackingOccupied(snapName string) (bool, error) {
	procsPath := filepath.Join(trackingDir(snapName), "cgroup.procs")
	data, err := os.ReadFile(procsPath)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, errors.WrapWithDetail(err, errors.KindTracking, "is-occupied",
			"cannot read "+procsPath)
	}
	if len(data) == 0 {
		return false, nil
	}
	// The kernel always terminates cgroup.procs entries with a newline.
	if data[len(data)-1] != '\n' {
		return false, errors.WrapWithDetail(errors.ErrBadProcsLine, errors.KindTracking,
			"is-occupied", "while reading "+procsPath)
	}

	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTracking, "is-occupied")
	}
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		pid, err := strconv.Atoi(line)
		if err != nil {
			return false, errors.WrapWithDetail(errors.ErrBadProcsLine, errors.KindTracking,
				"is-occupied", "unexpected entry "+strutil.Quote(line))
		}
		// A pid that died since the kernel listed it is fine; any
		// survivor means the snap is still running.
		if _, err := fs.Proc(pid); err == nil {
			return true, nil
		}
	}
	return false, nil
}
