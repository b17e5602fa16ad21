// Package agent defines the type-specific interface that the core
// dispatches to for encoding, hashing, and three-way merging artifact
// content, plus the process-wide registry that maps an artifact-type
// tag to its agent.
//
// Agents are a closed variant: text and directory are implemented in
// sibling packages (textmerge, dirmerge) and the baseline agent lives
// in the depot package next to the types it merges. New agents must be
// registered before any artifact of their type is loaded — for a type
// tag it hasn't seen, Registry.Lookup reports not found and
// Registry.MustLookup panics.
package agent

// Type is the artifact-type tag carried on every Artifact and used to
// select an Agent. It is persisted data, not a Go type.
type Type string

const (
	TypeText      Type = "text"
	TypeDirectory Type = "directory"
	TypeBaseline  Type = "baseline"
)

// Conflict is a single unresolved point of disagreement discovered
// during a merge. Details is an agent-specific encoded payload so
// callers can render context-appropriate UI without the core — or
// other agents — knowing its layout.
type Conflict struct {
	ID             string `json:"id"`
	ArtifactID     string `json:"artifactId"`
	ArtifactType   Type   `json:"artifactType"`
	Kind           string `json:"kind"`
	SourceVersion  string `json:"sourceVersion"`
	TargetVersion  string `json:"targetVersion"`
	Details        []byte `json:"details"`
}

// MergeResult is the uniform output of every agent's three-way merge,
// and of the baseline merge that recurses into agents. ProposedMerge
// is always populated with a best-effort result, even when Conflicts
// is non-empty, so a workspace can materialise a file (or directory,
// or baseline) with conflict markers the user can edit.
type MergeResult struct {
	ArtifactType    Type       `json:"artifactType"`
	ArtifactID      string     `json:"artifactId"`
	AncestorVersion string     `json:"ancestorVersion"`
	SourceVersion   string     `json:"sourceVersion"`
	TargetVersion   string     `json:"targetVersion"`
	ProposedMerge   []byte     `json:"proposedMerge"`
	Conflicts       []Conflict `json:"conflicts"`
}

// Agent is the type-specific code for encoding, hashing, and merging
// values of one artifact type. Implementations must be safe for
// concurrent use — the registry is shared process-wide.
type Agent interface {
	// Type returns the artifact-type tag this agent handles.
	Type() Type

	// Encode serialises a decoded value to the bytes stored as an
	// ArtifactVersion's content.
	Encode(value any) ([]byte, error)

	// Decode parses stored bytes back into the agent's value type.
	Decode(content []byte) (any, error)

	// ContentHash computes a stable digest over a decoded value.
	ContentHash(value any) (string, error)

	// Merge performs a three-way merge given the version ids and raw
	// (encoded) content of the ancestor, source, and target versions.
	// The version ids are threaded through so agents that render
	// human-readable conflict markers (text) can label each side; the
	// returned MergeResult always carries them back in
	// AncestorVersion/SourceVersion/TargetVersion. Agents never return
	// an error for user-visible conflicts — those are reported in the
	// result's Conflicts field — only for malformed input that the
	// caller should treat as Corrupt.
	Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*MergeResult, error)
}

// FileAgent is implemented by agents whose values also round-trip
// through the workspace's on-disk materialisation (currently only the
// text agent; the baseline and directory agents are never written to
// disk directly).
type FileAgent interface {
	Agent

	// CanHandle reports whether this agent should own the file at
	// path, based on the registry's extension lookup table (a
	// configuration object outside this package's scope).
	CanHandle(path string) bool

	// ReadFromDisk loads a file's content in the representation this
	// agent's Decode expects.
	ReadFromDisk(path string) ([]byte, error)

	// WriteToDisk writes an artifact version's encoded content to a
	// file on disk.
	WriteToDisk(path string, content []byte) error
}
