//go:build darwin

package store

import "golang.org/x/sys/unix"

// reflink materialises dest as a copy-on-write clone of src using
// APFS's clonefile(2), pm's preferred linking strategy since it shares
// backing storage without the hardlink restriction of staying on the
// same directory entry as the store object.
func reflink(src, dest string) error {
	return unix.Clonefile(src, dest, 0)
}
