package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindValidation, "validation error"},
		{KindMisuse, "misuse"},
		{KindNotFound, "not found"},
		{KindCgroup, "cgroup error"},
		{KindDevice, "device cgroup error"},
		{KindBPF, "bpf error"},
		{KindMount, "mount error"},
		{KindTracking, "tracking cgroup error"},
		{KindPermission, "permission denied"},
		{KindInternal, "internal error"},
		{Kind(999), "unknown error"},
	}

	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.expected {
			t.Errorf("Kind(%d).String() = %q, expected %q", tc.kind, got, tc.expected)
		}
	}
}

func TestLaunchErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *LaunchError
		expected string
	}{
		{
			"kind only",
			&LaunchError{Kind: KindCgroup},
			"cgroup error",
		},
		{
			"op and detail",
			&LaunchError{Op: "device-allow", Kind: KindDevice, Detail: "bad rule"},
			"device-allow: bad rule",
		},
		{
			"tag op detail",
			&LaunchError{Tag: "snap.foo.app", Op: "attach", Kind: KindDevice, Detail: "no cgroup"},
			"snap.foo.app: attach: no cgroup",
		},
		{
			"wrapped errno",
			&LaunchError{Op: "open", Kind: KindCgroup, Err: unix.ENOENT},
			"open: cgroup error: no such file or directory",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.expected {
				t.Errorf("Error() = %q, expected %q", got, tc.expected)
			}
		})
	}
}

func TestNilLaunchError(t *testing.T) {
	var e *LaunchError
	if e.Error() != "<nil>" {
		t.Errorf("nil error message = %q", e.Error())
	}
	if e.Unwrap() != nil {
		t.Errorf("nil error unwraps to %v", e.Unwrap())
	}
}

func TestUnwrapErrno(t *testing.T) {
	err := Wrap(unix.ENOENT, KindNotFound, "get-object")
	if !stderrors.Is(err, unix.ENOENT) {
		t.Errorf("wrapped ENOENT not visible through errors.Is")
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindDevice, "device-deny", "boom")
	if !Is(err, &LaunchError{Kind: KindDevice}) {
		t.Errorf("errors with matching kinds should match")
	}
	if Is(err, &LaunchError{Kind: KindBPF}) {
		t.Errorf("errors with different kinds should not match")
	}
}

func TestIsMatchesSentinels(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrDeviceCgroupGone)
	if !Is(err, ErrDeviceCgroupGone) {
		t.Errorf("wrapped sentinel not found by errors.Is")
	}
	if !IsKind(err, KindNotFound) {
		t.Errorf("wrapped sentinel kind not found by IsKind")
	}
}

func TestWrapVariants(t *testing.T) {
	inner := stderrors.New("inner")

	err := WrapWithTag(inner, KindTracking, "join-tracking", "snap.foo.app")
	if err.Tag != "snap.foo.app" || err.Op != "join-tracking" {
		t.Errorf("WrapWithTag fields incorrect: %+v", err)
	}
	if Unwrap(err) != inner {
		t.Errorf("Unwrap did not return the inner error")
	}

	derr := WrapWithDetail(inner, KindMount, "mount-bpffs", "mounting bpf filesystem")
	if !strings.Contains(derr.Error(), "mounting bpf filesystem") {
		t.Errorf("detail missing from message: %q", derr.Error())
	}
	if !strings.Contains(derr.Error(), "inner") {
		t.Errorf("inner error missing from message: %q", derr.Error())
	}
}

func TestGetKind(t *testing.T) {
	if _, ok := GetKind(stderrors.New("plain")); ok {
		t.Errorf("plain error should not report a kind")
	}
	kind, ok := GetKind(fmt.Errorf("x: %w", ErrForeignPid))
	if !ok || kind != KindMisuse {
		t.Errorf("GetKind = (%v, %v), expected (KindMisuse, true)", kind, ok)
	}
}
