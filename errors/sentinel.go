// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Validation errors.
var (
	// ErrInvalidSnapName indicates the snap name is invalid.
	ErrInvalidSnapName = &LaunchError{
		Kind:   KindValidation,
		Detail: "invalid snap name",
	}

	// ErrInvalidInstanceKey indicates the instance key is invalid.
	ErrInvalidInstanceKey = &LaunchError{
		Kind:   KindValidation,
		Detail: "invalid instance key",
	}

	// ErrInvalidSecurityTag indicates the security tag is malformed.
	ErrInvalidSecurityTag = &LaunchError{
		Kind:   KindValidation,
		Detail: "invalid security tag",
	}
)

// Device cgroup errors.
var (
	// ErrDeviceCgroupGone indicates a pre-existing device cgroup was
	// requested but is no longer present.
	ErrDeviceCgroupGone = &LaunchError{
		Kind:   KindNotFound,
		Detail: "device cgroup does not exist",
	}

	// ErrUnknownDeviceKind indicates a device kind other than char or block.
	ErrUnknownDeviceKind = &LaunchError{
		Kind:   KindMisuse,
		Detail: "unknown device kind",
	}

	// ErrForeignPid indicates an attempt to attach the v2 device filter
	// on behalf of another process.
	ErrForeignPid = &LaunchError{
		Kind:   KindMisuse,
		Detail: "cannot attach device filter to a foreign process",
	}

	// ErrUnexpectedCgroupShape indicates the process's own v2 cgroup is
	// not a per-snap service or scope, so attaching a device filter to it
	// would confine unrelated processes.
	ErrUnexpectedCgroupShape = &LaunchError{
		Kind:   KindDevice,
		Detail: "own cgroup is not a snap service or scope",
	}

	// ErrHandleClosed indicates an operation on a destroyed handle.
	ErrHandleClosed = &LaunchError{
		Kind:   KindMisuse,
		Detail: "device cgroup handle is closed",
	}
)

// Cgroup hierarchy errors.
var (
	// ErrCgroupNotMounted indicates /sys/fs/cgroup is not mounted.
	ErrCgroupNotMounted = &LaunchError{
		Kind:   KindCgroup,
		Detail: "cgroup hierarchy is not mounted",
	}

	// ErrMalformedSelfCgroup indicates /proc/self/cgroup could not be parsed.
	ErrMalformedSelfCgroup = &LaunchError{
		Kind:   KindCgroup,
		Detail: "cannot parse /proc/self/cgroup",
	}

	// ErrTreeTooDeep indicates the cgroup v2 subtree scan exceeded the
	// maximum supported depth.
	ErrTreeTooDeep = &LaunchError{
		Kind:   KindCgroup,
		Detail: "cgroup tree is too deep",
	}

	// ErrShortWrite indicates a cgroup control file accepted fewer bytes
	// than were written.
	ErrShortWrite = &LaunchError{
		Kind:   KindCgroup,
		Detail: "short write to cgroup control file",
	}
)

// Tracking cgroup errors.
var (
	// ErrBadProcsLine indicates cgroup.procs content the kernel never
	// produces: a line without a trailing newline or a non-numeric entry.
	ErrBadProcsLine = &LaunchError{
		Kind:   KindTracking,
		Detail: "malformed cgroup.procs content",
	}
)

// BPF errors.
var (
	// ErrBpfFsMount indicates the bpf filesystem could not be mounted.
	ErrBpfFsMount = &LaunchError{
		Kind:   KindBPF,
		Detail: "cannot mount bpf filesystem",
	}

	// ErrProgramLoad indicates the device filter program was rejected.
	ErrProgramLoad = &LaunchError{
		Kind:   KindBPF,
		Detail: "cannot load device filter program",
	}
)

// Launcher errors.
var (
	// ErrNoCommand indicates no command was given to execute.
	ErrNoCommand = &LaunchError{
		Kind:   KindMisuse,
		Detail: "no command to execute",
	}
)
