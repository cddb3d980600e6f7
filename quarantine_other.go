//go:build !darwin

package xlvba

// QuarantineValue returns the download-quarantine marker of path, if set.
// Only the darwin family has one.
func QuarantineValue(path string) (string, bool) {
	_ = path
	return "", false
}

// ClearQuarantine removes the download-quarantine marker. A no-op on
// platforms without one.
func ClearQuarantine(path string) bool {
	_ = path
	return false
}
