package pipeline

import (
	"bufio"
	"bytes"
	"os"

	"github.com/sps2/pm/pkg/pmerrors"
)

// zstdMagic is the four-byte frame magic number every zstd-compressed
// stream begins with (RFC 8878 §3.1.1); spec.md §4.5 stage 2 requires
// sniffing the format before attempting extraction.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// SniffFormat reads an archive's leading bytes and confirms it begins
// with a zstd frame, the only format spec.md §6 accepts.
func SniffFormat(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &pmerrors.StorageError{Kind: pmerrors.StorageIOError, Path: path, Cause: err}
	}
	defer f.Close()

	header := make([]byte, len(zstdMagic))
	if _, err := bufio.NewReader(f).Read(header); err != nil {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationFormatInvalid, Path: path, Message: "archive too short to sniff"}
	}
	if !bytes.Equal(header, zstdMagic) {
		return &pmerrors.ValidationError{Kind: pmerrors.ValidationFormatInvalid, Path: path, Message: "archive is not zstd-compressed"}
	}
	return nil
}
