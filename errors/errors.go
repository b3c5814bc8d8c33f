// Package errors classifies everything that can go wrong while confining
// and launching an application.
//
// A failure is reported as a *LaunchError carrying the operation that
// failed, the security tag it was acting for when one is known, and a
// Kind placing it in the launcher's error taxonomy: validation failures
// and API misuse surface to the caller, expected absences are
// distinguishable from real faults, and everything else is fatal to the
// invocation. The chain below a LaunchError is preserved, so callers can
// still test for kernel errnos with Is.
package errors

import (
	"errors"
	"strings"
)

// Kind places an error in the launcher's taxonomy.
type Kind int

const (
	// KindValidation indicates an invalid snap name, instance name or
	// security tag.
	KindValidation Kind = iota
	// KindMisuse indicates an API misuse such as a nil argument, an
	// unknown device kind, or attaching a v2 filter to a foreign pid.
	KindMisuse
	// KindNotFound indicates an expected resource is absent.
	KindNotFound
	// KindCgroup indicates a cgroup operation error.
	KindCgroup
	// KindDevice indicates a device-cgroup operation error.
	KindDevice
	// KindBPF indicates a bpf(2) or bpffs operation error.
	KindBPF
	// KindMount indicates a mount or umount operation error.
	KindMount
	// KindTracking indicates a tracking-cgroup operation error.
	KindTracking
	// KindPermission indicates a permission error.
	KindPermission
	// KindInternal indicates an internal error.
	KindInternal
)

// kindNames is indexed by Kind.
var kindNames = []string{
	KindValidation: "validation error",
	KindMisuse:     "misuse",
	KindNotFound:   "not found",
	KindCgroup:     "cgroup error",
	KindDevice:     "device cgroup error",
	KindBPF:        "bpf error",
	KindMount:      "mount error",
	KindTracking:   "tracking cgroup error",
	KindPermission: "permission denied",
	KindInternal:   "internal error",
}

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown error"
	}
	return kindNames[k]
}

// LaunchError is one failed launcher operation.
type LaunchError struct {
	// Op names the operation that failed, e.g. "device-allow" or
	// "join-tracking".
	Op string
	// Tag is the security tag the operation acted for, when known.
	Tag string
	// Err is the underlying error, when one exists.
	Err error
	// Kind classifies the failure.
	Kind Kind
	// Detail describes the failure beyond what Kind conveys.
	Detail string
}

// Error assembles the message from whichever parts are present, in
// fixed order: tag, operation, detail (or the kind when there is no
// detail), underlying error.
func (e *LaunchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 4)
	if e.Tag != "" {
		parts = append(parts, e.Tag)
	}
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	} else {
		parts = append(parts, e.Kind.String())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying error to the errors package.
func (e *LaunchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two launch errors by kind, so a wrapped sentinel and a
// hand-built error of the same kind are interchangeable to callers.
// Non-launch targets are left to the rest of the chain.
func (e *LaunchError) Is(target error) bool {
	t, ok := target.(*LaunchError)
	if !ok {
		return false
	}
	if e == nil || t == nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// New builds an error with no underlying cause, for failures the
// launcher detects itself.
func New(kind Kind, op string, detail string) *LaunchError {
	return &LaunchError{Kind: kind, Op: op, Detail: detail}
}

// Wrap classifies an underlying error.
func Wrap(err error, kind Kind, op string) *LaunchError {
	return &LaunchError{Kind: kind, Op: op, Err: err}
}

// WrapWithTag classifies an underlying error and records the security
// tag it concerned.
func WrapWithTag(err error, kind Kind, op string, tag string) *LaunchError {
	e := Wrap(err, kind, op)
	e.Tag = tag
	return e
}

// WrapWithDetail classifies an underlying error and adds a description
// of what was being attempted.
func WrapWithDetail(err error, kind Kind, op string, detail string) *LaunchError {
	e := Wrap(err, kind, op)
	e.Detail = detail
	return e
}

// GetKind returns the kind of the first LaunchError in err's chain.
func GetKind(err error) (Kind, bool) {
	var lerr *LaunchError
	if !errors.As(err, &lerr) {
		return 0, false
	}
	return lerr.Kind, true
}

// IsKind reports whether err's chain contains a LaunchError of the
// given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := GetKind(err)
	return ok && k == kind
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns err's underlying error, if any.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
