package bpf

import (
	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
	"snap-confine-go/mount"
)

// sysStatfs is replaceable by tests.
var sysStatfs = unix.Statfs

// IsBpfFs reports whether path is the root of a mounted bpf filesystem.
// A missing path is simply not a bpf filesystem.
func IsBpfFs(path string) (bool, error) {
	var st unix.Statfs_t
	if err := sysStatfs(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, errors.WrapWithDetail(err, errors.KindBPF, "is-bpffs",
			"cannot statfs "+path)
	}
	return st.Type == unix.BPF_FS_MAGIC, nil
}

// MountBpfFs mounts a bpf filesystem at path.
func MountBpfFs(path string) error {
	if err := mount.Mount("bpf", path, "bpf", 0, "mode=0700"); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "mount-bpffs",
			errors.ErrBpfFsMount.Detail)
	}
	return nil
}
