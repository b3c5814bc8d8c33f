package bpf

import (
	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
)

// minMemlockLimit is the locked-memory floor needed to create the device
// map and load the filter program on kernels that account BPF memory
// against RLIMIT_MEMLOCK. Newer kernels account elsewhere; raising and
// restoring is still performed there so behaviour is uniform.
const minMemlockLimit = 512 * 1024

// savedMemlock holds the limit in force before RaiseMemlock, for
// restoration when the device cgroup handle is destroyed.
var savedMemlock *unix.Rlimit

// Syscall hooks, replaceable by tests.
var (
	sysGetrlimit = unix.Getrlimit
	sysSetrlimit = unix.Setrlimit
)

// RaiseMemlock lifts RLIMIT_MEMLOCK to at least minMemlockLimit and
// remembers the previous limit.
func RaiseMemlock() error {
	var lim unix.Rlimit
	if err := sysGetrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "raise-memlock",
			"cannot read locked-memory limit")
	}
	saved := lim
	savedMemlock = &saved

	if lim.Max >= minMemlockLimit && lim.Cur >= minMemlockLimit {
		return nil
	}
	if lim.Max < minMemlockLimit {
		lim.Max = minMemlockLimit
	}
	if lim.Cur < minMemlockLimit {
		lim.Cur = minMemlockLimit
	}
	if err := sysSetrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "raise-memlock",
			"cannot adjust locked-memory limit")
	}
	return nil
}

// RestoreMemlock reinstates the limit saved by RaiseMemlock. Without a
// prior raise it does nothing.
func RestoreMemlock() error {
	if savedMemlock == nil {
		return nil
	}
	lim := *savedMemlock
	savedMemlock = nil
	if err := sysSetrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "restore-memlock",
			"cannot restore locked-memory limit")
	}
	return nil
}
