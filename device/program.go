package device

import (
	"github.com/cilium/ebpf/asm"
)

// Values the kernel passes in the access_type field of the cgroup
// device hook context: the low 16 bits carry the device class.
const (
	devCgDeviceBlock = 1
	devCgDeviceChar  = 2
)

// Context field offsets of struct bpf_cgroup_dev_ctx.
const (
	ctxAccessType = 0
	ctxMajor      = 4
	ctxMinor      = 8
)

// Stack offsets of the packed lookup key. The key is 9 bytes; anchoring
// the kind byte at -9 leaves major at -8 and minor at -4, both 4-byte
// aligned despite the packed layout.
const (
	keyOffset      = -9
	keyMajorOffset = -8
	keyMinorOffset = -4
)

// filterInstructions synthesises the device filter consulted on every
// open of a device node by a process in the filtered cgroup. The
// program builds a lookup key from the hook context and checks the
// pinned map twice: once with the exact minor, once with the any-minor
// sentinel. A hit permits the access (return 1), anything else denies
// it (return 0).
func filterInstructions(mapFd int) asm.Instructions {
	return asm.Instructions{
		// Deny unless a rule matches.
		asm.Mov.Imm(asm.R0, 0),
		asm.Mov.Reg(asm.R6, asm.R1),
		// key.major = ctx->major
		asm.LoadMem(asm.R2, asm.R6, ctxMajor, asm.Word),
		asm.StoreMem(asm.RFP, keyMajorOffset, asm.R2, asm.Word),
		// key.minor = ctx->minor
		asm.LoadMem(asm.R2, asm.R6, ctxMinor, asm.Word),
		asm.StoreMem(asm.RFP, keyMinorOffset, asm.R2, asm.Word),
		// key.kind from the device class in ctx->access_type.
		// Unknown classes are denied outright.
		asm.LoadMem(asm.R2, asm.R6, ctxAccessType, asm.Word),
		asm.And.Imm(asm.R2, 0xffff),
		asm.JEq.Imm(asm.R2, devCgDeviceBlock, "block"),
		asm.JEq.Imm(asm.R2, devCgDeviceChar, "char"),
		asm.Return(),
		asm.StoreImm(asm.RFP, keyOffset, int64('b'), asm.Byte).WithSymbol("block"),
		asm.Ja.Label("lookup"),
		asm.StoreImm(asm.RFP, keyOffset, int64('c'), asm.Byte).WithSymbol("char"),
		// First lookup: the exact (kind, major, minor) triple.
		asm.Mov.Reg(asm.R2, asm.RFP).WithSymbol("lookup"),
		asm.Add.Imm(asm.R2, keyOffset),
		asm.LoadMapPtr(asm.R1, mapFd),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "wildcard"),
		asm.Mov.Imm(asm.R0, 1),
		asm.Return(),
		// Second lookup: the any-minor sentinel for this major.
		asm.StoreImm(asm.RFP, keyMinorOffset, -1, asm.Word).WithSymbol("wildcard"),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, keyOffset),
		asm.LoadMapPtr(asm.R1, mapFd),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "deny"),
		asm.Mov.Imm(asm.R0, 1),
		// A miss jumps here with R0 already 0.
		asm.Return().WithSymbol("deny"),
	}
}
