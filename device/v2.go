package device

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	"snap-confine-go/bpf"
	"snap-confine-go/cgroup"
	"snap-confine-go/errors"
	"snap-confine-go/strutil"
)

// bpfFsRoot is the bpf filesystem mount point, replaceable by tests.
var bpfFsRoot = "/sys/fs/bpf"

// Hooks replaceable by tests.
var (
	sysChown      = unix.Chown
	ownCgroupPath = cgroup.ProcessOwnPath
)

// maxMapEntries bounds the per-tag device map. Hot-plug tooling adds
// entries after launch; real device sets stay far below this.
const maxMapEntries = 500

// mapValueSize is one presence byte per key.
const mapValueSize = 1

// snapCgroupShape matches the per-snap units the process is expected to
// run in: snap.<snap>.<app>.service for services, with an extra random
// component before .scope for transient scopes, and the hook form in
// place of <app> for hooks. The snap and app components follow the same
// grammar the naming package validates, so no component can smuggle in
// a dot. Attaching the filter to any other group would confine
// unrelated processes sharing it.
var snapCgroupShape = regexp.MustCompile(`^snap\.` +
	`[a-z](-?[a-z0-9])*(_[a-z0-9]{1,10})?\.` +
	`([A-Za-z0-9](-?[A-Za-z0-9])*|hook\.[a-z](-?[a-z])*)` +
	`(\.[A-Za-z0-9-]+)?\.(service|scope)$`)

// v2 owns the pinned device map and, for freshly constructed handles,
// the loaded filter program.
type v2 struct {
	tag  string
	m    *ebpf.Map
	prog *ebpf.Program
}

// sanitizeTag maps the dots of a security tag to underscores; bpffs
// rejects dots in path components.
func sanitizeTag(tag string) string {
	return strings.ReplaceAll(tag, ".", "_")
}

// pinPath returns the well-known pin location for a tag.
func pinPath(tag string) string {
	return filepath.Join(bpfFsRoot, "snap", sanitizeTag(tag))
}

// ensureBpfFs makes sure the bpf filesystem is mounted and the snap pin
// directory under it exists with tight permissions.
func ensureBpfFs() error {
	mounted, err := bpf.IsBpfFs(bpfFsRoot)
	if err != nil {
		return err
	}
	if !mounted {
		if err := bpf.MountBpfFs(bpfFsRoot); err != nil {
			return err
		}
	}

	pinDir := filepath.Join(bpfFsRoot, "snap")
	if err := unix.Mkdir(pinDir, 0700); err != nil && !errors.Is(err, unix.EEXIST) {
		return errors.WrapWithDetail(err, errors.KindBPF, "device-cgroup-new",
			"cannot create "+pinDir)
	}
	if err := sysChown(pinDir, 0, 0); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "device-cgroup-new",
			"cannot change ownership of "+pinDir)
	}
	// Some bpffs revisions reject mode changes on existing objects.
	if err := unix.Fchmodat(unix.AT_FDCWD, pinDir, 0700, 0); err != nil && !errors.Is(err, unix.ENOTSUP) {
		return errors.WrapWithDetail(err, errors.KindBPF, "device-cgroup-new",
			"cannot change permissions of "+pinDir)
	}
	return nil
}

func newV2(tag string, flags Flags) (*v2, error) {
	fromExisting := flags&FromExisting != 0

	if err := bpf.RaiseMemlock(); err != nil {
		return nil, err
	}
	if err := ensureBpfFs(); err != nil {
		return nil, err
	}

	path := pinPath(tag)
	m, err := bpf.GetObject(path)
	switch {
	case err == nil && !fromExisting:
		if err := wipeMap(m); err != nil {
			m.Close()
			return nil, errors.WrapWithTag(err, errors.KindDevice, "device-cgroup-new", tag)
		}
	case err == nil && fromExisting:
		// Keep the current device set; another process owns the
		// filter program.
	case errors.Is(err, unix.ENOENT) && fromExisting:
		return nil, errors.WrapWithTag(err, errors.KindNotFound, "device-cgroup-new", tag)
	case errors.Is(err, unix.ENOENT):
		m, err = bpf.CreateMap("snap_device_map", keySize, mapValueSize, maxMapEntries)
		if err != nil {
			return nil, err
		}
		// The pin is what lets hot-plug tooling find the map and
		// update it after we have gone.
		if err := bpf.PinObject(m, path); err != nil {
			m.Close()
			return nil, err
		}
	default:
		return nil, errors.WrapWithDetail(err, errors.KindBPF, "device-cgroup-new",
			"cannot open pinned map "+path)
	}

	b := &v2{tag: tag, m: m}
	if !fromExisting {
		prog, err := bpf.LoadProgram("snap_device_flt", filterInstructions(m.FD()))
		if err != nil {
			b.close()
			return nil, err
		}
		b.prog = prog
	}
	return b, nil
}

// wipeMap removes every key, one at a time. Batch deletion is not used;
// it is still rejected by some supported kernels.
func wipeMap(m *ebpf.Map) error {
	var keys [][]byte
	var prior []byte
	for {
		next := make([]byte, keySize)
		err := bpf.NextKey(m, prior, next)
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			break
		}
		if err != nil {
			return err
		}
		keys = append(keys, next)
		prior = next
	}
	for _, key := range keys {
		if err := bpf.DeleteElement(m, key); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
			return err
		}
	}
	return nil
}

func (b *v2) allow(key Key) error {
	if err := bpf.UpdateElement(b.m, key.pack(), []byte{1}); err != nil {
		return errors.WrapWithTag(err, errors.KindDevice, "device-allow", b.tag)
	}
	return nil
}

func (b *v2) deny(key Key) error {
	err := bpf.DeleteElement(b.m, key.pack())
	if err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
		return errors.WrapWithTag(err, errors.KindDevice, "device-deny", b.tag)
	}
	return nil
}

func (b *v2) attach(pid int) error {
	// The filter attaches to a cgroup, not a process; we can only
	// meaningfully confine ourselves.
	if pid != os.Getpid() {
		return errors.WrapWithTag(errors.ErrForeignPid, errors.KindMisuse,
			"device-attach", b.tag)
	}

	own, err := ownCgroupPath()
	if err != nil {
		return err
	}
	if own == "" {
		return errors.WrapWithTag(errors.ErrUnexpectedCgroupShape, errors.KindDevice,
			"device-attach", b.tag)
	}
	if !snapCgroupShape.MatchString(filepath.Base(own)) {
		return errors.WrapWithDetail(errors.ErrUnexpectedCgroupShape, errors.KindDevice,
			"device-attach", "own cgroup is "+strutil.Quote(own))
	}
	if b.prog == nil {
		return errors.New(errors.KindMisuse, "device-attach",
			"handle opened from existing state has no filter program")
	}

	dir := filepath.Join(cgroupRootV2(), own)
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.WrapWithDetail(err, errors.KindDevice, "device-attach",
			fmt.Sprintf("cannot open own cgroup %s", dir))
	}
	defer strutil.CloseFd(&fd)

	return bpf.AttachProgram(fd, b.prog)
}

// cgroupRootV2 returns the unified hierarchy root. It is the same
// mount point the v1 arm uses, shared so tests redirect both at once.
func cgroupRootV2() string {
	return cgroupRoot
}

// close releases the descriptors. The kernel keeps the program alive
// through the cgroup attachment and the map through its pin; neither is
// detached or unpinned here.
func (b *v2) close() error {
	if b.m != nil {
		b.m.Close()
		b.m = nil
	}
	if b.prog != nil {
		b.prog.Close()
		b.prog = nil
	}
	return bpf.RestoreMemlock()
}
