// Package launcher ties the confinement pieces together for one
// invocation: configure the device cgroup, attach the current process,
// record it in the tracking hierarchy, shed privileges and execute the
// confined command.
package launcher

import (
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"snap-confine-go/cgroup"
	"snap-confine-go/device"
	"snap-confine-go/errors"
	"snap-confine-go/logging"
	"snap-confine-go/naming"
	"snap-confine-go/privs"
)

// Rule names one device the confined application may use.
type Rule struct {
	Kind  device.Kind
	Major uint32
	Minor uint32
}

// DefaultRules returns the device set every confined application gets:
// the standard pseudo devices plus every minor of the first unix98 pty
// major (136).
func DefaultRules() []Rule {
	return []Rule{
		{device.Char, 1, 3},                 // /dev/null
		{device.Char, 1, 5},                 // /dev/zero
		{device.Char, 1, 7},                 // /dev/full
		{device.Char, 1, 8},                 // /dev/random
		{device.Char, 1, 9},                 // /dev/urandom
		{device.Char, 5, 0},                 // /dev/tty
		{device.Char, 5, 2},                 // /dev/ptmx
		{device.Char, 136, device.AnyMinor}, // /dev/pts/*
	}
}

// Launcher holds everything needed to launch one confined command.
type Launcher struct {
	tag      string
	snapName string
	command  []string
	rules    []Rule
}

// New validates the security tag and command and returns a launcher
// carrying the default device rules.
func New(tag string, command []string) (*Launcher, error) {
	if err := naming.ValidateSecurityTag(tag); err != nil {
		return nil, err
	}
	snapName, err := naming.SnapNameFromTag(tag)
	if err != nil {
		return nil, err
	}
	if len(command) == 0 {
		return nil, errors.WrapWithTag(errors.ErrNoCommand, errors.KindMisuse, "launch", tag)
	}
	return &Launcher{
		tag:      tag,
		snapName: snapName,
		command:  command,
		rules:    DefaultRules(),
	}, nil
}

// AddRule grants one extra device beyond the default set.
func (l *Launcher) AddRule(r Rule) {
	l.rules = append(l.rules, r)
}

// Confine establishes device confinement and process tracking for the
// calling process. The device set must be complete before the process
// is attached, so rules are applied first.
func (l *Launcher) Confine() error {
	log := logging.WithTag(logging.Default(), l.tag)

	dev, err := device.New(l.tag, 0)
	if err != nil {
		return err
	}
	defer dev.Close()

	for _, r := range l.rules {
		if err := dev.Allow(r.Kind, r.Major, r.Minor); err != nil {
			return err
		}
	}

	pid := os.Getpid()
	if err := dev.Attach(pid); err != nil {
		return err
	}
	log.Debug("device cgroup configured", "rules", len(l.rules))

	// On v1 hosts membership is recorded in the freezer hierarchy; on
	// unified hosts the per-snap transient unit already tracks us.
	unified, err := cgroup.IsUnified()
	if err != nil {
		return err
	}
	if !unified {
		if err := cgroup.JoinTracking(l.snapName, pid); err != nil {
			return err
		}
		log.Debug("joined tracking cgroup", "snap", l.snapName)
	}
	return nil
}

// Exec sheds the remaining privileges and replaces the process with the
// confined command. It only returns on failure.
func (l *Launcher) Exec() error {
	if err := privs.ClearAmbient(); err != nil {
		return err
	}
	if err := privs.DropEffective(); err != nil {
		return err
	}

	path, err := exec.LookPath(l.command[0])
	if err != nil {
		return errors.WrapWithTag(err, errors.KindInternal, "launch", l.tag)
	}
	if err := unix.Exec(path, l.command, os.Environ()); err != nil {
		return errors.WrapWithDetail(err, errors.KindInternal, "launch",
			"cannot execute "+path)
	}
	return nil
}

// Run confines the calling process and executes the command.
func (l *Launcher) Run() error {
	if err := l.Confine(); err != nil {
		return err
	}
	return l.Exec()
}
