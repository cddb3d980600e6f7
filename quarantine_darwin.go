//go:build darwin

package xlvba

import "github.com/pkg/xattr"

const quarantineAttr = "com.apple.quarantine"

// QuarantineValue returns the download-quarantine marker of path, if set.
func QuarantineValue(path string) (string, bool) {
	v, err := xattr.Get(path, quarantineAttr)
	if err != nil || len(v) == 0 {
		return "", false
	}
	return string(v), true
}

// ClearQuarantine removes the download-quarantine marker so the host does
// not block macros solely because the file was downloaded. Best-effort;
// reports whether the marker was removed.
func ClearQuarantine(path string) bool {
	return xattr.Remove(path, quarantineAttr) == nil
}
