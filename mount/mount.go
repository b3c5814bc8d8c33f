// Package mount renders and performs mount and umount operations.
//
// Rendering produces the shell-style command equivalent to a mount(2) or
// umount2(2) call. The rendered text is used in logs and diagnostics only;
// its exact shape is part of the package contract so failures can be
// matched against the command a human would have typed.
package mount

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
	"snap-confine-go/logging"
	"snap-confine-go/privs"
)

// Mount flags the kernel defines but x/sys/unix does not export.
const (
	msNosec  = 1 << 28
	msBorn   = 1 << 29
	msActive = 1 << 30
	msNouser = 1 << 31
)

// optionFlags lists the flags rendered as -o options, in rendering order.
var optionFlags = []struct {
	flag uintptr
	name string
}{
	{unix.MS_RDONLY, "ro"},
	{unix.MS_NOSUID, "nosuid"},
	{unix.MS_NODEV, "nodev"},
	{unix.MS_NOEXEC, "noexec"},
	{unix.MS_SYNCHRONOUS, "sync"},
	{unix.MS_REMOUNT, "remount"},
	{unix.MS_MANDLOCK, "mand"},
	{unix.MS_DIRSYNC, "dirsync"},
	{unix.MS_NOATIME, "noatime"},
	{unix.MS_NODIRATIME, "nodiratime"},
	{unix.MS_SILENT, "silent"},
	{unix.MS_POSIXACL, "acl"},
	{unix.MS_RELATIME, "relatime"},
	{unix.MS_KERNMOUNT, "kernmount"},
	{unix.MS_I_VERSION, "iversion"},
	{unix.MS_STRICTATIME, "strictatime"},
	{unix.MS_LAZYTIME, "lazytime"},
	{msNosec, "nosec"},
	{msBorn, "born"},
	{msActive, "active"},
	{msNouser, "nouser"},
}

// propagationFlags lists the shared-subtree modifiers, in rendering order.
var propagationFlags = []struct {
	flag uintptr
	name string
}{
	{unix.MS_SHARED, "shared"},
	{unix.MS_SLAVE, "slave"},
	{unix.MS_PRIVATE, "private"},
	{unix.MS_UNBINDABLE, "unbindable"},
}

// RenderMount returns the mount command equivalent to
// mount(source, target, fstype, flags, data).
func RenderMount(source, target, fstype string, flags uintptr, data string) string {
	var sb strings.Builder
	sb.WriteString("mount")

	if fstype != "" && fstype != "none" {
		fmt.Fprintf(&sb, " -t %s", fstype)
	}

	rec := flags&unix.MS_REC != 0
	var used uintptr

	if flags&unix.MS_BIND != 0 {
		if rec {
			sb.WriteString(" --rbind")
		} else {
			sb.WriteString(" --bind")
		}
		used |= unix.MS_BIND | unix.MS_REC
	}
	if flags&unix.MS_MOVE != 0 {
		sb.WriteString(" --move")
		used |= unix.MS_MOVE
	}
	for _, p := range propagationFlags {
		if flags&p.flag == 0 {
			continue
		}
		if rec {
			fmt.Fprintf(&sb, " --make-r%s", p.name)
		} else {
			fmt.Fprintf(&sb, " --make-%s", p.name)
		}
		used |= p.flag | unix.MS_REC
	}

	var opts []string
	residual := flags &^ used
	for _, o := range optionFlags {
		if residual&o.flag != 0 {
			opts = append(opts, o.name)
			residual &^= o.flag
		}
	}
	if residual != 0 {
		opts = append(opts, fmt.Sprintf("%#x", residual))
	}
	if data != "" {
		opts = append(opts, data)
	}
	if len(opts) > 0 {
		fmt.Fprintf(&sb, " -o %s", strings.Join(opts, ","))
	}

	if source != "" && source != "none" {
		sb.WriteByte(' ')
		sb.WriteString(source)
	}
	if target != "" && target != "none" {
		sb.WriteByte(' ')
		sb.WriteString(target)
	}
	return sb.String()
}

// RenderUmount returns the umount command equivalent to umount2(target, flags).
func RenderUmount(target string, flags int) string {
	var sb strings.Builder
	sb.WriteString("umount")
	if flags&unix.MNT_FORCE != 0 {
		sb.WriteString(" --force")
	}
	if flags&unix.MNT_DETACH != 0 {
		sb.WriteString(" --lazy")
	}
	if flags&unix.MNT_EXPIRE != 0 {
		sb.WriteString(" --expire")
	}
	if flags&unix.UMOUNT_NOFOLLOW != 0 {
		sb.WriteString(" --no-follow")
	}
	if target != "" && target != "none" {
		sb.WriteByte(' ')
		sb.WriteString(target)
	}
	return sb.String()
}

// Syscall hooks, replaceable by tests to force failures at the named
// call sites.
var (
	sysMount   = unix.Mount
	sysUnmount = unix.Unmount
)

// faultInjection maps a call-site name ("mount", "umount") to an error
// that every call at that site fails with while the entry is present.
// Tests only.
var faultInjection map[string]error

func injectedFault(site string) error {
	if faultInjection == nil {
		return nil
	}
	return faultInjection[site]
}

// Mount performs mount(2) and returns an error carrying the rendered
// command on failure.
func Mount(source, target, fstype string, flags uintptr, data string) error {
	return doMount(source, target, fstype, flags, data, false)
}

// MountAllowMissing is Mount, except a target that does not exist is
// not treated as an error.
func MountAllowMissing(source, target, fstype string, flags uintptr, data string) error {
	return doMount(source, target, fstype, flags, data, true)
}

func doMount(source, target, fstype string, flags uintptr, data string, allowMissing bool) error {
	cmd := RenderMount(source, target, fstype, flags, data)
	logging.Debug("mount", "cmd", cmd)

	err := injectedFault("mount")
	if err == nil {
		err = sysMount(source, target, fstype, flags, data)
	}
	if err != nil {
		if allowMissing && errors.Is(err, unix.ENOENT) {
			return nil
		}
		// Diagnostics interpolate caller-influenced paths; format them
		// with effective privileges already lowered.
		privs.MustDropEffective()
		return errors.WrapWithDetail(err, errors.KindMount, "mount",
			fmt.Sprintf("cannot perform operation: %s", cmd))
	}
	return nil
}

// Unmount performs umount2(2) and returns an error carrying the rendered
// command on failure.
func Unmount(target string, flags int) error {
	return doUnmount(target, flags, false)
}

// UnmountAllowMissing is Unmount, except a target that does not exist is
// not treated as an error.
func UnmountAllowMissing(target string, flags int) error {
	return doUnmount(target, flags, true)
}

func doUnmount(target string, flags int, allowMissing bool) error {
	cmd := RenderUmount(target, flags)
	logging.Debug("umount", "cmd", cmd)

	err := injectedFault("umount")
	if err == nil {
		err = sysUnmount(target, flags)
	}
	if err != nil {
		if allowMissing && errors.Is(err, unix.ENOENT) {
			return nil
		}
		privs.MustDropEffective()
		return errors.WrapWithDetail(err, errors.KindMount, "umount",
			fmt.Sprintf("cannot perform operation: %s", cmd))
	}
	return nil
}
