//go:build !darwin

package store

import "fmt"

// reflink is unavailable outside APFS; LinkInto falls back to hardlink
// then copy. pm targets 64-bit ARM macOS, so this path only runs in
// cross-platform tests and tooling.
func reflink(src, dest string) error {
	return fmt.Errorf("store: reflink unsupported on this platform")
}
