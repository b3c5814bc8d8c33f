package cgroup

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"snap-confine-go/errors"
)

// maxScanDepth bounds the v2 subtree walk. Real hierarchies are a
// handful of levels deep; a deeper tree indicates something is wrong.
const maxScanDepth = 32

// IsTrackingSnap reports whether the v2 hierarchy contains a per-snap
// service or scope group for the given snap, other than the calling
// process's own group. The caller's own group is never counted as
// evidence of tracking.
func IsTrackingSnap(snapName string) (bool, error) {
	own, err := ProcessOwnPath()
	if err != nil {
		return false, err
	}
	ownPath := ""
	if own != "" {
		ownPath = filepath.Join(cgroupRoot, own)
	}
	prefix := "snap." + snapName + "."
	return scanForTracking(cgroupRoot, prefix, ownPath, 0)
}

func scanForTracking(dir, prefix, ownPath string, depth int) (bool, error) {
	if depth > maxScanDepth {
		return false, errors.WrapWithDetail(errors.ErrTreeTooDeep, errors.KindCgroup,
			"is-tracking", "while scanning "+dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		// The root may legitimately be absent, and a group can be
		// removed while we scan. Anything else, notably EACCES, is
		// a real problem.
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, errors.WrapWithDetail(err, errors.KindCgroup, "is-tracking",
			"cannot inspect "+dir)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)
		if strings.HasPrefix(name, prefix) &&
			(strings.HasSuffix(name, ".service") || strings.HasSuffix(name, ".scope")) &&
			path != ownPath {
			return true, nil
		}
		found, err := scanForTracking(path, prefix, ownPath, depth+1)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}
