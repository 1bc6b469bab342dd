package resolver

import "fmt"

// PackageId identifies a single resolved (name, version) pair.
type PackageId struct {
	Name    string
	Version string
}

func (id PackageId) String() string { return fmt.Sprintf("%s@%s", id.Name, id.Version) }

// DepKind distinguishes a runtime dependency, needed at every install,
// from a build dependency, needed only while building from source.
type DepKind int

const (
	DepRuntime DepKind = iota
	DepBuild
)

// VersionEntry is one version of a package as known to the Index.
type VersionEntry struct {
	Version     string   `json:"version"`
	RuntimeDeps []string `json:"runtime_deps,omitempty"` // "name range" specs, e.g. "zlib >=1.2"
	BuildDeps   []string `json:"build_deps,omitempty"`
	URL         string   `json:"url"`
	Arch        string   `json:"arch"`
	// ArchiveHash is the index's declared BLAKE3 hash of the archive at
	// URL, hex-encoded. pkg/pipeline compares it against the hash of
	// the bytes actually received (spec.md §4.5 stage 1 / §8 scenario 3).
	ArchiveHash string `json:"archive_hash"`
}

// Index maps a package name to its known versions, sorted ascending by
// version. The resolver never mutates an Index; ResolutionContext and
// Index together are the full input to Resolve.
type Index struct {
	versions map[string][]VersionEntry
}

// NewIndex builds an Index from per-package version lists, sorting each
// list ascending by semantic version.
func NewIndex(versions map[string][]VersionEntry) *Index {
	idx := &Index{versions: make(map[string][]VersionEntry, len(versions))}
	for name, entries := range versions {
		sorted := make([]VersionEntry, len(entries))
		copy(sorted, entries)
		sortVersionsAscending(sorted)
		idx.versions[name] = sorted
	}
	return idx
}

// Versions returns the known versions of name, ascending.
func (idx *Index) Versions(name string) []VersionEntry {
	return idx.versions[name]
}

// MatchingVersions returns the versions of name that satisfy rng,
// ascending.
func (idx *Index) MatchingVersions(name string, rng Range) []VersionEntry {
	var matches []VersionEntry
	for _, v := range idx.versions[name] {
		if rng.Matches(v.Version) {
			matches = append(matches, v)
		}
	}
	return matches
}

// Spec is a request for a package within a version range.
type Spec struct {
	Name  string
	Range Range
}

// ResolutionContext is the input to Resolve: the top-level requests
// plus any local archives being installed directly from a file.
type ResolutionContext struct {
	RuntimeDeps []Spec
	BuildDeps   []Spec
	LocalFiles  []LocalFile
}

// LocalFile is a package being installed from a local archive rather
// than fetched from the index; its manifest supplies name/version/deps.
type LocalFile struct {
	Path        string
	Name        string
	Version     string
	RuntimeDeps []string
}

// Action distinguishes how a ResolvedNode's bytes are obtained.
type Action int

const (
	ActionDownload Action = iota
	ActionLocal
)

// DepEdge is one dependency of a resolved node.
type DepEdge struct {
	Name  string
	Range Range
	Kind  DepKind
}

// ResolvedNode is one package version the solver selected.
type ResolvedNode struct {
	Name        string
	Version     string
	Action      Action
	Deps        []DepEdge
	URL         string // set when Action == ActionDownload
	ArchiveHash string // set when Action == ActionDownload
	Path        string // set when Action == ActionLocal
}

// ID returns the PackageId this node represents.
func (n ResolvedNode) ID() PackageId { return PackageId{Name: n.Name, Version: n.Version} }

// ExecutionPlan partitions resolved nodes into batches where every
// dependency of a node in batch i is in some batch j < i, so batches
// can be installed in order while nodes within a batch install in
// parallel.
type ExecutionPlan struct {
	Batches [][]PackageId
}

// ResolutionResult is Resolve's successful output.
type ResolutionResult struct {
	Nodes         map[PackageId]ResolvedNode
	ExecutionPlan ExecutionPlan
}

// ConflictExplanation describes why no satisfying assignment exists.
type ConflictExplanation struct {
	ConflictingPackages [][2]string
	Message             string
	Suggestions         []string
}
