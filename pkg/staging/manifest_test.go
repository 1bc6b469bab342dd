package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := "[package]\nname = \"zlib\"\nversion = \"1.2.11\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(content), 0o644))

	m, err := ParseManifest(dir)
	require.NoError(t, err)
	require.Equal(t, "zlib", m.Package.Name)
	require.Equal(t, "1.2.11", m.Package.Version)

	require.NoError(t, ValidateIdentity(m, "zlib", "1.2.11"))
	require.Error(t, ValidateIdentity(m, "zlib", "1.2.12"))
}

func TestParseManifestMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ParseManifest(dir)
	require.Error(t, err)
}
