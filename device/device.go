// Package device implements the device-access controller for confined
// applications.
//
// Two kernel mechanisms hide behind one handle: on hosts with the v1
// device controller the handle writes textual rules to
// /sys/fs/cgroup/devices/<tag>/, and on unified v2 hosts it maintains a
// pinned BPF hash map consulted by a filter program attached to the
// process's own cgroup. Callers construct a handle, issue allow and deny
// calls, and finally attach the current process; the mechanism in use is
// invisible to them.
package device

import (
	"encoding/binary"

	"snap-confine-go/cgroup"
	"snap-confine-go/errors"
	"snap-confine-go/naming"
)

// Kind designates the class of a device node.
type Kind byte

const (
	// Char is a character device.
	Char Kind = 'c'
	// Block is a block device.
	Block Kind = 'b'
)

// AnyMinor is the sentinel minor number matching every minor of a major.
const AnyMinor = ^uint32(0)

// keySize is the packed size of a Key: one kind byte followed by two
// 32-bit numbers.
const keySize = 9

// Key identifies one device rule.
type Key struct {
	Kind  Kind
	Major uint32
	Minor uint32
}

// pack encodes the key in the layout the filter program reads from its
// stack: the kind byte leads so that major and minor stay 4-byte
// aligned at runtime.
func (k Key) pack() []byte {
	buf := make([]byte, keySize)
	buf[0] = byte(k.Kind)
	binary.NativeEndian.PutUint32(buf[1:5], k.Major)
	binary.NativeEndian.PutUint32(buf[5:9], k.Minor)
	return buf
}

// unpack decodes a packed key.
func unpack(buf []byte) Key {
	return Key{
		Kind:  Kind(buf[0]),
		Major: binary.NativeEndian.Uint32(buf[1:5]),
		Minor: binary.NativeEndian.Uint32(buf[5:9]),
	}
}

// Flags alter how a handle is constructed.
type Flags uint

const (
	// FromExisting opens a controller that is already configured,
	// without resetting its state. Hot-plug event handlers use this to
	// update the device set of a running application.
	FromExisting Flags = 1 << iota
)

// backend is one arm of the v1/v2 divide.
type backend interface {
	allow(key Key) error
	deny(key Key) error
	attach(pid int) error
	close() error
}

// Cgroup controls device access for one security tag.
type Cgroup struct {
	tag string
	b   backend
}

// New constructs the device controller for the given security tag,
// choosing the kernel mechanism the host provides. Without FromExisting
// the controller starts out denying everything; with it, the existing
// state is left alone. A FromExisting request for a controller that is
// gone fails with an error satisfying errors.Is(err, unix.ENOENT).
func New(tag string, flags Flags) (*Cgroup, error) {
	if err := naming.ValidateSecurityTag(tag); err != nil {
		return nil, err
	}
	unified, err := cgroup.IsUnified()
	if err != nil {
		return nil, err
	}

	var b backend
	if unified {
		b, err = newV2(tag, flags)
	} else {
		b, err = newV1(tag, flags)
	}
	if err != nil {
		return nil, err
	}
	return &Cgroup{tag: tag, b: b}, nil
}

// Tag returns the security tag the controller was created for.
func (c *Cgroup) Tag() string {
	return c.tag
}

func checkKind(kind Kind) error {
	if kind != Char && kind != Block {
		return errors.Wrap(errors.ErrUnknownDeviceKind, errors.KindMisuse, "device-kind")
	}
	return nil
}

// Allow grants access to the given device. Use AnyMinor to cover every
// minor number of the major.
func (c *Cgroup) Allow(kind Kind, major, minor uint32) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if c.b == nil {
		return errors.ErrHandleClosed
	}
	return c.b.allow(Key{Kind: kind, Major: major, Minor: minor})
}

// Deny revokes access to the given device. Denying a device that was
// never allowed is not an error.
func (c *Cgroup) Deny(kind Kind, major, minor uint32) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if c.b == nil {
		return errors.ErrHandleClosed
	}
	return c.b.deny(Key{Kind: kind, Major: major, Minor: minor})
}

// Attach puts pid under the control of the configured device set. It
// must be called after all Allow and Deny calls so the process only ever
// runs with the complete filter. On v2 pid must be the calling process.
func (c *Cgroup) Attach(pid int) error {
	if c.b == nil {
		return errors.ErrHandleClosed
	}
	return c.b.attach(pid)
}

// Close releases the handle. Kernel-side state survives where it should:
// on v2 the attached program and the pinned map stay alive. Close is
// idempotent.
func (c *Cgroup) Close() error {
	if c.b == nil {
		return nil
	}
	b := c.b
	c.b = nil
	return b.close()
}
