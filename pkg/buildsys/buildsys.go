// Package buildsys models the build-system capability set spec.md §9's
// design note describes. The engine never invokes a build step itself —
// recipe execution is the out-of-scope build-sandbox collaborator (§1) —
// but it records which system produced an already-built archive, since
// that determines whether a package carries a venv_path worth tracking
// (SPEC_FULL.md §6).
package buildsys

import "fmt"

// System is the tagged enum of build systems the engine recognizes.
type System int

const (
	Unknown System = iota
	Autotools
	CMake
	Meson
	Cargo
	Go
	Python
	NodeJS
)

func (s System) String() string {
	switch s {
	case Autotools:
		return "autotools"
	case CMake:
		return "cmake"
	case Meson:
		return "meson"
	case Cargo:
		return "cargo"
	case Go:
		return "go"
	case Python:
		return "python"
	case NodeJS:
		return "nodejs"
	default:
		return "unknown"
	}
}

// Parse maps a manifest's declared build_system string to a System,
// defaulting to Unknown rather than failing: the engine only uses this
// to decide venv_path bookkeeping, never to gate the install.
func Parse(raw string) System {
	switch raw {
	case "autotools":
		return Autotools
	case "cmake":
		return CMake
	case "meson":
		return Meson
	case "cargo":
		return Cargo
	case "go":
		return Go
	case "python":
		return Python
	case "nodejs":
		return NodeJS
	default:
		return Unknown
	}
}

// Capabilities describes what a build-sandbox collaborator can do with a
// System; the engine only stores which flags apply, it never calls them.
type Capabilities struct {
	Detect    bool
	Configure bool
	Build     bool
	Test      bool
	Install   bool
	Env       bool
}

// CapabilitiesFor returns the fixed capability set of s, mirroring the
// original's per-system build-sandbox descriptors.
func CapabilitiesFor(s System) Capabilities {
	switch s {
	case Python:
		// Python packages are staged pre-built (a venv the build sandbox
		// populated); the engine never configures or builds them itself.
		return Capabilities{Detect: true, Install: true, Env: true}
	case Unknown:
		return Capabilities{}
	default:
		return Capabilities{Detect: true, Configure: true, Build: true, Test: true, Install: true, Env: true}
	}
}

// UsesVenv reports whether s keeps a Python-style virtualenv at
// PackageInstall.VenvPath worth tracking across states.
func (s System) UsesVenv() bool { return s == Python }

func (s System) GoString() string { return fmt.Sprintf("buildsys.%s", s.String()) }
