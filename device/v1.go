package device

import (
	"fmt"

	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
	"snap-confine-go/strutil"
)

// cgroupRoot is the cgroup mount point, replaceable by tests.
var cgroupRoot = "/sys/fs/cgroup"

// Syscall hooks, replaceable by tests.
var (
	sysFchown = unix.Fchown
	sysFchmod = unix.Fchmod
)

// maxRuleLen bounds one textual device rule ("c 4294967295:4294967295 rwm\n").
const maxRuleLen = 32

// v1 owns write descriptors into the devices controller hierarchy of
// one security tag.
type v1 struct {
	allowFd int
	denyFd  int
	procsFd int
}

func newV1(tag string, flags Flags) (*v1, error) {
	fromExisting := flags&FromExisting != 0

	rootFd, err := unix.Open(cgroupRoot,
		unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, errors.WrapWithDetail(err, errors.KindDevice, "device-cgroup-new",
			"cannot open "+cgroupRoot)
	}
	defer strutil.CloseFd(&rootFd)

	devicesFd, err := unix.Openat(rootFd, "devices",
		unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, errors.WrapWithDetail(err, errors.KindDevice, "device-cgroup-new",
			"cannot open devices controller")
	}
	defer strutil.CloseFd(&devicesFd)

	if !fromExisting {
		// Create with no access bits, take ownership, then widen.
		// Creating at 0755 directly would let a non-root observer
		// peek between mkdir and chown.
		if err := unix.Mkdirat(devicesFd, tag, 0000); err != nil && !errors.Is(err, unix.EEXIST) {
			return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
		}
	}

	tagFd, err := unix.Openat(devicesFd, tag,
		unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
	if err != nil {
		if fromExisting && errors.Is(err, unix.ENOENT) {
			// The pre-existing group the caller expected is gone.
			return nil, errors.WrapWithTag(err, errors.KindNotFound, "device-cgroup-new", tag)
		}
		return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
	}
	defer strutil.CloseFd(&tagFd)

	if !fromExisting {
		if err := sysFchown(tagFd, 0, 0); err != nil {
			return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
		}
		if err := sysFchmod(tagFd, 0755); err != nil {
			return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
		}
	}

	b := &v1{allowFd: -1, denyFd: -1, procsFd: -1}
	ok := false
	defer func() {
		if !ok {
			b.close()
		}
	}()

	for _, f := range []struct {
		name string
		fd   *int
	}{
		{"devices.allow", &b.allowFd},
		{"devices.deny", &b.denyFd},
		{"cgroup.procs", &b.procsFd},
	} {
		*f.fd, err = unix.Openat(tagFd, f.name, unix.O_WRONLY|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
		if err != nil {
			if fromExisting && errors.Is(err, unix.ENOENT) {
				return nil, errors.WrapWithTag(err, errors.KindNotFound, "device-cgroup-new", tag)
			}
			return nil, errors.WrapWithDetail(err, errors.KindDevice, "device-cgroup-new",
				"cannot open "+f.name)
		}
	}

	if !fromExisting {
		// A single "a" wipes every previously allowed device.
		if err := writeAll(b.denyFd, []byte("a")); err != nil {
			return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
		}
	}

	ok = true
	return b, nil
}

// rule renders one textual device rule in the kernel's format.
func rule(key Key) ([]byte, error) {
	buf := strutil.NewFixedBuffer(maxRuleLen)
	if err := buf.WriteByte(byte(key.Kind)); err != nil {
		return nil, err
	}
	if err := buf.Writef(" %d:", key.Major); err != nil {
		return nil, err
	}
	var err error
	if key.Minor == AnyMinor {
		err = buf.WriteByte('*')
	} else {
		err = buf.Writef("%d", key.Minor)
	}
	if err != nil {
		return nil, err
	}
	if err := buf.WriteString(" rwm\n"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAll(fd int, data []byte) error {
	n, err := unix.Write(fd, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errors.ErrShortWrite
	}
	return nil
}

func (b *v1) allow(key Key) error {
	line, err := rule(key)
	if err != nil {
		return errors.Wrap(err, errors.KindDevice, "device-allow")
	}
	if err := writeAll(b.allowFd, line); err != nil {
		return errors.WrapWithDetail(err, errors.KindDevice, "device-allow",
			"cannot write rule "+strutil.Quote(string(line)))
	}
	return nil
}

func (b *v1) deny(key Key) error {
	line, err := rule(key)
	if err != nil {
		return errors.Wrap(err, errors.KindDevice, "device-deny")
	}
	if err := writeAll(b.denyFd, line); err != nil {
		return errors.WrapWithDetail(err, errors.KindDevice, "device-deny",
			"cannot write rule "+strutil.Quote(string(line)))
	}
	return nil
}

func (b *v1) attach(pid int) error {
	if err := writeAll(b.procsFd, []byte(fmt.Sprintf("%d\n", pid))); err != nil {
		return errors.WrapWithDetail(err, errors.KindDevice, "device-attach",
			fmt.Sprintf("cannot move process %d", pid))
	}
	return nil
}

func (b *v1) close() error {
	strutil.CloseFd(&b.allowFd)
	strutil.CloseFd(&b.denyFd)
	strutil.CloseFd(&b.procsFd)
	return nil
}
