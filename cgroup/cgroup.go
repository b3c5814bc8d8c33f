// Package cgroup probes and manipulates the host cgroup hierarchies.
//
// The launcher needs three things from cgroups: to know whether the host
// runs the unified v2 hierarchy, to locate the calling process's own v2
// group, and to create-and-join named v1 hierarchies used for process
// tracking.
package cgroup

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
	"snap-confine-go/logging"
	"snap-confine-go/strutil"
)

// Filesystem locations, replaceable by tests.
var (
	cgroupRoot     = "/sys/fs/cgroup"
	procSelfCgroup = "/proc/self/cgroup"
)

// Syscall hooks, replaceable by tests.
var (
	sysStatfs   = unix.Statfs
	sysFchownat = unix.Fchownat
)

var (
	unifiedOnce = new(sync.Once)
	unified     bool
	unifiedErr  error
)

// IsUnified reports whether the host uses the unified cgroup v2
// hierarchy. The probe runs once per process; the first positive
// detection emits a warning.
func IsUnified() (bool, error) {
	unifiedOnce.Do(func() {
		unified, unifiedErr = probeUnified()
		if unifiedErr == nil && unified {
			logging.Warn("host uses unified cgroup hierarchy, device confinement uses bpf filter programs")
		}
	})
	return unified, unifiedErr
}

func probeUnified() (bool, error) {
	var st unix.Statfs_t
	if err := sysStatfs(cgroupRoot, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			// No cgroup filesystem mounted at all.
			return false, nil
		}
		return false, errors.WrapWithDetail(err, errors.KindCgroup, "is-unified",
			"cannot statfs "+cgroupRoot)
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC, nil
}

// ProcessOwnPath returns the path of the calling process's cgroup in the
// v2 hierarchy, as recorded in /proc/self/cgroup. An empty string with a
// nil error means the process has no v2 membership recorded.
func ProcessOwnPath() (string, error) {
	data, err := os.ReadFile(procSelfCgroup)
	if err != nil {
		return "", errors.Wrap(err, errors.KindCgroup, "own-cgroup-path")
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ":", 3)
		if len(fields) != 3 {
			return "", errors.WrapWithDetail(errors.ErrMalformedSelfCgroup,
				errors.KindCgroup, "own-cgroup-path", "unexpected line "+strutil.Quote(line))
		}
		// Hierarchy id 0 is the v2 hierarchy; v1 lines carry a
		// controller list and a non-zero id.
		if fields[0] != "0" {
			continue
		}
		if fields[2] == "" {
			return "", errors.WrapWithDetail(errors.ErrMalformedSelfCgroup,
				errors.KindCgroup, "own-cgroup-path", "empty path in "+strutil.Quote(line))
		}
		return fields[2], nil
	}
	return "", nil
}

// CreateAndJoin creates the named hierarchy under parent, makes it owned
// by root, and moves pid into it. An already existing hierarchy is
// reused.
func CreateAndJoin(parent, name string, pid int) error {
	parentFd, err := unix.Open(parent, unix.O_PATH|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot open "+parent)
	}
	defer strutil.CloseFd(&parentFd)

	if err := unix.Mkdirat(parentFd, name, 0755); err != nil && !errors.Is(err, unix.EEXIST) {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot create hierarchy "+name)
	}

	dirFd, err := unix.Openat(parentFd, name, unix.O_PATH|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot open hierarchy "+name)
	}
	defer strutil.CloseFd(&dirFd)

	if err := sysFchownat(dirFd, "", 0, 0, unix.AT_EMPTY_PATH); err != nil {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot change ownership of hierarchy "+name)
	}

	procsFd, err := unix.Openat(dirFd, "cgroup.procs", unix.O_WRONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot open cgroup.procs in hierarchy "+name)
	}
	defer strutil.CloseFd(&procsFd)

	buf := []byte(strconv.Itoa(pid) + "\n")
	n, err := unix.Write(procsFd, buf)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindCgroup, "create-and-join",
			"cannot move process into hierarchy "+name)
	}
	if n != len(buf) {
		return errors.WrapWithDetail(errors.ErrShortWrite, errors.KindCgroup,
			"create-and-join", "writing to cgroup.procs in hierarchy "+name)
	}
	return nil
}
