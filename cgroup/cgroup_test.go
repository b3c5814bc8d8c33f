package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
)

// setVar swaps a package variable for the duration of a test.
func setVar[T any](t *testing.T, v *T, value T) {
	t.Helper()
	orig := *v
	*v = value
	t.Cleanup(func() { *v = orig })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestProbeUnified(t *testing.T) {
	tests := []struct {
		name     string
		ftype    int64
		err      error
		expected bool
		wantErr  bool
	}{
		{"v2 magic", unix.CGROUP2_SUPER_MAGIC, nil, true, false},
		{"v1 tmpfs", unix.TMPFS_MAGIC, nil, false, false},
		{"not mounted", 0, unix.ENOENT, false, false},
		{"statfs failure", 0, unix.EACCES, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setVar(t, &sysStatfs, func(path string, st *unix.Statfs_t) error {
				if tc.err != nil {
					return tc.err
				}
				st.Type = tc.ftype
				return nil
			})
			got, err := probeUnified()
			if (err != nil) != tc.wantErr {
				t.Fatalf("probeUnified() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.expected {
				t.Errorf("probeUnified() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestIsUnifiedCachesResult(t *testing.T) {
	setVar(t, &unifiedOnce, new(sync.Once))
	calls := 0
	setVar(t, &sysStatfs, func(path string, st *unix.Statfs_t) error {
		calls++
		st.Type = unix.CGROUP2_SUPER_MAGIC
		return nil
	})

	for i := 0; i < 3; i++ {
		got, err := IsUnified()
		if err != nil || !got {
			t.Fatalf("IsUnified() = (%v, %v)", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("statfs probe ran %d times, expected 1", calls)
	}
}

func TestProcessOwnPath(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
		wantErr  bool
	}{
		{
			"unified only",
			"0::/user.slice/user-1000.slice/snap.foo.app.1234.scope\n",
			"/user.slice/user-1000.slice/snap.foo.app.1234.scope",
			false,
		},
		{
			"hybrid",
			"12:freezer:/snap.foo\n1:name=systemd:/user.slice\n0::/system.slice/snap.foo.service\n",
			"/system.slice/snap.foo.service",
			false,
		},
		{
			"no v2 line",
			"12:freezer:/\n11:devices:/user.slice\n",
			"",
			false,
		},
		{
			"empty v2 path",
			"0::\n",
			"",
			true,
		},
		{
			"garbage line",
			"not-a-cgroup-line\n",
			"",
			true,
		},
		{
			"empty file",
			"",
			"",
			false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cgroup")
			writeFile(t, path, tc.content)
			setVar(t, &procSelfCgroup, path)

			got, err := ProcessOwnPath()
			if (err != nil) != tc.wantErr {
				t.Fatalf("ProcessOwnPath() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.expected {
				t.Errorf("ProcessOwnPath() = %q, expected %q", got, tc.expected)
			}
		})
	}
}

func TestProcessOwnPathMissingFile(t *testing.T) {
	setVar(t, &procSelfCgroup, filepath.Join(t.TempDir(), "gone"))
	if _, err := ProcessOwnPath(); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestCreateAndJoin(t *testing.T) {
	parent := t.TempDir()
	// Simulate the kernel-provided control file of an existing hierarchy.
	writeFile(t, filepath.Join(parent, "snap.foo", "cgroup.procs"), "")
	setVar(t, &sysFchownat, func(fd int, path string, uid, gid, flags int) error {
		return nil
	})

	if err := CreateAndJoin(parent, "snap.foo", 1234); err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(parent, "snap.foo", "cgroup.procs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1234\n" {
		t.Errorf("cgroup.procs = %q, expected %q", data, "1234\n")
	}
}

func TestCreateAndJoinMissingParent(t *testing.T) {
	err := CreateAndJoin(filepath.Join(t.TempDir(), "gone"), "snap.foo", 1)
	if err == nil {
		t.Fatalf("expected error for missing parent")
	}
	if !errors.IsKind(err, errors.KindCgroup) {
		t.Errorf("unexpected error kind: %v", err)
	}
}

func TestCreateAndJoinChownFailure(t *testing.T) {
	parent := t.TempDir()
	writeFile(t, filepath.Join(parent, "snap.foo", "cgroup.procs"), "")
	setVar(t, &sysFchownat, func(fd int, path string, uid, gid, flags int) error {
		return unix.EPERM
	})

	if err := CreateAndJoin(parent, "snap.foo", 1); err == nil {
		t.Errorf("chown failure must be fatal")
	}
}

// fakeV2Tree builds a cgroup root with the given group directories and
// points /proc/self/cgroup at ownPath.
func fakeV2Tree(t *testing.T, ownPath string, groups ...string) {
	t.Helper()
	root := t.TempDir()
	for _, g := range groups {
		if err := os.MkdirAll(filepath.Join(root, g), 0755); err != nil {
			t.Fatal(err)
		}
	}
	self := filepath.Join(t.TempDir(), "self-cgroup")
	writeFile(t, self, "0::"+ownPath+"\n")
	setVar(t, &cgroupRoot, root)
	setVar(t, &procSelfCgroup, self)
}

func TestIsTrackingSnapSelfOnly(t *testing.T) {
	own := "/user.slice/snap.foo.app.1234-1234.scope"
	fakeV2Tree(t, own, "user.slice/snap.foo.app.1234-1234.scope")

	found, err := IsTrackingSnap("foo")
	if err != nil {
		t.Fatalf("IsTrackingSnap: %v", err)
	}
	if found {
		t.Errorf("own group must not count as tracking")
	}
}

func TestIsTrackingSnapSibling(t *testing.T) {
	own := "/user.slice/snap.foo.app.1234-1234.scope"
	fakeV2Tree(t, own,
		"user.slice/snap.foo.app.1234-1234.scope",
		"user.slice/snap.foo.app.1111-1111.scope",
	)

	found, err := IsTrackingSnap("foo")
	if err != nil {
		t.Fatalf("IsTrackingSnap: %v", err)
	}
	if !found {
		t.Errorf("sibling group must count as tracking")
	}
}

func TestIsTrackingSnapMatching(t *testing.T) {
	tests := []struct {
		name     string
		groups   []string
		expected bool
	}{
		{"service unit", []string{"system.slice/snap.foo.daemon.service"}, true},
		{"scope unit", []string{"user.slice/snap.foo.app.9-9.scope"}, true},
		{"other snap", []string{"system.slice/snap.bar.daemon.service"}, false},
		{"prefix but wrong suffix", []string{"system.slice/snap.foo.daemon.slice"}, false},
		{"name prefix collision", []string{"system.slice/snap.foobar.daemon.service"}, false},
		{"nested deep", []string{"a/b/c/d/snap.foo.app.1.scope"}, true},
		{"empty tree", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fakeV2Tree(t, "/init.scope", tc.groups...)
			found, err := IsTrackingSnap("foo")
			if err != nil {
				t.Fatalf("IsTrackingSnap: %v", err)
			}
			if found != tc.expected {
				t.Errorf("IsTrackingSnap() = %v, expected %v", found, tc.expected)
			}
		})
	}
}

func TestIsTrackingSnapMissingRoot(t *testing.T) {
	self := filepath.Join(t.TempDir(), "self-cgroup")
	writeFile(t, self, "0::/init.scope\n")
	setVar(t, &procSelfCgroup, self)
	setVar(t, &cgroupRoot, filepath.Join(t.TempDir(), "gone"))

	found, err := IsTrackingSnap("foo")
	if err != nil {
		t.Fatalf("missing root must not be an error: %v", err)
	}
	if found {
		t.Errorf("missing root cannot track anything")
	}
}

func TestIsTrackingSnapTooDeep(t *testing.T) {
	root := t.TempDir()
	deep := root
	for i := 0; i <= maxScanDepth+1; i++ {
		deep = filepath.Join(deep, "d"+strconv.Itoa(i))
	}
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatal(err)
	}
	self := filepath.Join(t.TempDir(), "self-cgroup")
	writeFile(t, self, "0::/init.scope\n")
	setVar(t, &procSelfCgroup, self)
	setVar(t, &cgroupRoot, root)

	_, err := IsTrackingSnap("foo")
	if !errors.Is(err, errors.ErrTreeTooDeep) {
		t.Errorf("expected ErrTreeTooDeep, got %v", err)
	}
}

func TestIsTrackingSnapUnreadableSubdir(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })
	self := filepath.Join(t.TempDir(), "self-cgroup")
	writeFile(t, self, "0::/init.scope\n")
	setVar(t, &procSelfCgroup, self)
	setVar(t, &cgroupRoot, root)

	if _, err := IsTrackingSnap("foo"); err == nil {
		t.Errorf("unreadable subdirectory must be fatal")
	}
}

func TestIsTrackingOccupied(t *testing.T) {
	root := t.TempDir()
	setVar(t, &cgroupRoot, root)
	proc := t.TempDir()
	setVar(t, &procRoot, proc)
	// pid 123 is alive, pid 456 is not.
	if err := os.Mkdir(filepath.Join(proc, "123"), 0755); err != nil {
		t.Fatal(err)
	}
	procsPath := filepath.Join(root, "freezer", "snap.foo", "cgroup.procs")

	tests := []struct {
		name     string
		content  string
		expected bool
		wantErr  bool
	}{
		{"empty", "", false, false},
		{"live pid", "123\n", true, false},
		{"dead pid", "456\n", false, false},
		{"dead then live", "456\n123\n", true, false},
		{"missing newline", "123", false, true},
		{"garbage", "abc\n", false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			writeFile(t, procsPath, tc.content)
			got, err := IsTrackingOccupied("foo")
			if (err != nil) != tc.wantErr {
				t.Fatalf("IsTrackingOccupied() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.expected {
				t.Errorf("IsTrackingOccupied() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestIsTrackingOccupiedNoHierarchy(t *testing.T) {
	setVar(t, &cgroupRoot, t.TempDir())
	got, err := IsTrackingOccupied("foo")
	if err != nil {
		t.Fatalf("IsTrackingOccupied: %v", err)
	}
	if got {
		t.Errorf("missing hierarchy cannot be occupied")
	}
}

func TestJoinTracking(t *testing.T) {
	root := t.TempDir()
	setVar(t, &cgroupRoot, root)
	setVar(t, &sysFchownat, func(fd int, path string, uid, gid, flags int) error {
		return nil
	})
	writeFile(t, filepath.Join(root, "freezer", "snap.foo", "cgroup.procs"), "")

	if err := JoinTracking("foo", 42); err != nil {
		t.Fatalf("JoinTracking: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "freezer", "snap.foo", "cgroup.procs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "42\n" {
		t.Errorf("cgroup.procs = %q, expected %q", data, "42\n")
	}
}

func TestJoinTrackingMissingFreezer(t *testing.T) {
	setVar(t, &cgroupRoot, t.TempDir())
	err := JoinTracking("foo", 1)
	if err == nil {
		t.Fatalf("expected error without a freezer hierarchy")
	}
	if !errors.IsKind(err, errors.KindTracking) {
		t.Errorf("unexpected error kind: %v", err)
	}
}
