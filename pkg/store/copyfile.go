package store

import (
	"fmt"
	"io"
	"os"
)

// copyFile is LinkInto's last-resort materialisation strategy: a full
// byte copy, used when reflink and hardlink are unavailable or when
// perms must differ from the store object's own read-only mode.
func copyFile(src, dest string, perms os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perms)
	if err != nil {
		return fmt.Errorf("copy: create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy: close %s: %w", dest, err)
	}
	return os.Chmod(dest, perms)
}
