package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/sps2/pm/pkg/pmerrors"
)

// Manifest is the parsed root manifest.toml every package archive must
// carry (spec.md §6): at minimum a [package] table naming the package
// the archive claims to be.
type Manifest struct {
	Package ManifestPackage `toml:"package"`
}

// ManifestPackage is the [package] table of manifest.toml.
type ManifestPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// BuildSystem names the pkg/buildsys.System that produced this
	// archive (e.g. "python"), optional and absent for most packages.
	BuildSystem string `toml:"build_system"`
	// VenvPath is the archive-relative path to a Python virtualenv,
	// present only when BuildSystem == "python".
	VenvPath string `toml:"venv_path"`
}

// ParseManifest reads and parses manifest.toml from extractDir, failing
// with a ValidationError if the file is missing or malformed.
func ParseManifest(extractDir string) (*Manifest, error) {
	path := filepath.Join(extractDir, "manifest.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationFormatInvalid,
			Path:    path,
			Message: "manifest.toml is missing",
		}
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationFormatInvalid,
			Path:    path,
			Message: fmt.Sprintf("manifest.toml parse error: %v", err),
		}
	}
	if m.Package.Name == "" || m.Package.Version == "" {
		return nil, &pmerrors.ValidationError{
			Kind:    pmerrors.ValidationFormatInvalid,
			Path:    path,
			Message: "manifest.toml missing [package] name or version",
		}
	}
	return &m, nil
}

// ValidateIdentity checks a parsed manifest against the PackageId the
// pipeline expected to extract, failing with ManifestMismatch if either
// field disagrees (spec.md §4.4 rule 1).
func ValidateIdentity(m *Manifest, expectedName, expectedVersion string) error {
	if m.Package.Name != expectedName || m.Package.Version != expectedVersion {
		return &pmerrors.ValidationError{
			Kind: pmerrors.ValidationManifestMismatch,
			Message: fmt.Sprintf("manifest declares %s@%s, expected %s@%s",
				m.Package.Name, m.Package.Version, expectedName, expectedVersion),
		}
	}
	return nil
}
