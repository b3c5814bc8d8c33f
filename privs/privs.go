// Package privs provides privilege hygiene for the setuid launcher.
//
// The launcher runs with elevated privileges until the confined application
// is about to be executed. Diagnostics that interpolate caller-controlled
// strings are only formatted after the effective identity has been lowered
// to the real one, so a latent formatting weakness cannot run elevated.
package privs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DropEffective lowers the effective group and user ids to the real ones.
// It is a no-op when the process is not running setuid. The group is
// dropped first; dropping the user first would leave no privilege to
// drop the group with.
func DropEffective() error {
	rgid := unix.Getgid()
	if unix.Getegid() != rgid {
		if err := unix.Setegid(rgid); err != nil {
			return fmt.Errorf("cannot set effective gid to %d: %w", rgid, err)
		}
	}
	ruid := unix.Getuid()
	if unix.Geteuid() != ruid {
		if err := unix.Seteuid(ruid); err != nil {
			return fmt.Errorf("cannot set effective uid to %d: %w", ruid, err)
		}
	}
	return nil
}

// MustDropEffective drops the effective identity and ignores failure.
// Used on error paths right before formatting a diagnostic, where there
// is no better action left to take than to report the original error.
func MustDropEffective() {
	_ = DropEffective()
}

// ClearAmbient removes every ambient capability so the confined
// application cannot inherit any through execve.
func ClearAmbient() error {
	if err := unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0); err != nil {
		return fmt.Errorf("cannot clear ambient capabilities: %w", err)
	}
	return nil
}
