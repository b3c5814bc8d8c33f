// Package bpf provides typed wrappers over the bpf(2) operations the
// launcher needs: hash-map element manipulation, device filter program
// loading and attachment, and object pinning on the bpf filesystem.
//
// The wrappers are deliberately thin. Callers receive *ebpf.Map and
// *ebpf.Program handles and the canonical errno semantics of the
// underlying syscall; policy lives in the device package.
package bpf

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
)

// verifierLogSize is the size of the buffer capturing verifier
// diagnostics for a rejected program.
const verifierLogSize = 4096

// CreateMap creates an unpinned BPF hash map.
func CreateMap(name string, keySize, valueSize, maxEntries uint32) (*ebpf.Map, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       name,
		Type:       ebpf.Hash,
		KeySize:    keySize,
		ValueSize:  valueSize,
		MaxEntries: maxEntries,
	})
	if err != nil {
		return nil, errors.WrapWithDetail(err, errors.KindBPF, "create-map",
			fmt.Sprintf("cannot create map %q", name))
	}
	return m, nil
}

// UpdateElement inserts or replaces one element.
func UpdateElement(m *ebpf.Map, key, value []byte) error {
	if err := m.Update(key, value, ebpf.UpdateAny); err != nil {
		return errors.Wrap(err, errors.KindBPF, "update-element")
	}
	return nil
}

// DeleteElement removes one element. Deleting an absent key fails with
// an error satisfying errors.Is(err, ebpf.ErrKeyNotExist).
func DeleteElement(m *ebpf.Map, key []byte) error {
	return m.Delete(key)
}

// NextKey writes the key following prior into next. A nil prior starts
// the iteration; reaching the end fails with ebpf.ErrKeyNotExist.
func NextKey(m *ebpf.Map, prior, next []byte) error {
	if prior == nil {
		return m.NextKey(nil, next)
	}
	return m.NextKey(prior, next)
}

// LoadProgram loads a cgroup-device filter program. Verifier output is
// captured into a fixed-size log buffer and carried in the error.
func LoadProgram(name string, insns asm.Instructions) (*ebpf.Program, error) {
	prog, err := ebpf.NewProgramWithOptions(&ebpf.ProgramSpec{
		Name:         name,
		Type:         ebpf.CGroupDevice,
		AttachType:   ebpf.AttachCGroupDevice,
		Instructions: insns,
		License:      "GPL",
	}, ebpf.ProgramOptions{
		LogSize: verifierLogSize,
	})
	if err != nil {
		return nil, errors.WrapWithDetail(err, errors.KindBPF, "load-program",
			errors.ErrProgramLoad.Detail)
	}
	return prog, nil
}

// AttachProgram attaches a loaded device filter to the cgroup directory
// referenced by cgroupFd.
func AttachProgram(cgroupFd int, prog *ebpf.Program) error {
	err := link.RawAttachProgram(link.RawAttachProgramOptions{
		Target:  cgroupFd,
		Program: prog,
		Attach:  ebpf.AttachCGroupDevice,
		Flags:   unix.BPF_F_ALLOW_MULTI,
	})
	if err != nil {
		return errors.Wrap(err, errors.KindBPF, "attach-program")
	}
	return nil
}

// PinObject pins a map to a path on the bpf filesystem, extending its
// lifetime beyond the owning process.
func PinObject(m *ebpf.Map, path string) error {
	if err := m.Pin(path); err != nil {
		return errors.WrapWithDetail(err, errors.KindBPF, "pin-object",
			fmt.Sprintf("cannot pin map to %s", path))
	}
	return nil
}

// GetObject opens a map previously pinned at path. An absent pin fails
// with an error satisfying errors.Is(err, unix.ENOENT).
func GetObject(path string) (*ebpf.Map, error) {
	return ebpf.LoadPinnedMap(path, nil)
}
