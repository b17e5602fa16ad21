// Package depot implements the object store described in spec.md §3:
// content-addressed, immutable Artifacts and ArtifactVersions, plus
// the mutable indices (Projects, Histories, Changes, SavePoints,
// Workspaces) built on top of them. It is built on the kv.Store
// contract and never assumes a particular backend.
package depot

import "github.com/polytope-vcs/polytope/internal/agent"

// Artifact is an identity independent of any content. Created once;
// never modified.
type Artifact struct {
	ID           string         `json:"id"`
	ArtifactType agent.Type     `json:"artifactType"`
	Timestamp    int64          `json:"timestamp"`
	Creator      string         `json:"creator"`
	ProjectID    string         `json:"projectId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ArtifactVersion is a specific, immutable snapshot of an artifact.
type ArtifactVersion struct {
	ID         string         `json:"id"`
	ArtifactID string         `json:"artifactId"`
	Creator    string         `json:"creator"`
	Timestamp  int64          `json:"timestamp"`
	Content    []byte         `json:"content"`
	Parents    []string       `json:"parents"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Project is a named container for one or more Histories.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RootHistory string `json:"rootHistory"`
}

// HistoryStep is one entry in a History's linear sequence.
type HistoryStep struct {
	BaselineVersion string `json:"baselineVersion"`
}

// History is a linear sequence of steps, each pointing at a baseline
// version. Histories form a parent/child tree rooted at "main".
type History struct {
	ID           string        `json:"id"`
	ProjectName  string        `json:"projectName"`
	Name         string        `json:"name"`
	ParentID     string        `json:"parentId,omitempty"`
	ForkStep     int           `json:"forkStep,omitempty"`
	Steps        []HistoryStep `json:"steps"`
}

// ChangeStatus is the lifecycle state of a Change.
type ChangeStatus string

const (
	ChangeOpen      ChangeStatus = "Open"
	ChangeClosed    ChangeStatus = "Closed"
	ChangeAbandoned ChangeStatus = "Abandoned"
)

// Change is a named workflow scoped to a single history.
type Change struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	HistoryID  string       `json:"history"`
	Basis      string       `json:"basis"`
	SavePoints []string     `json:"savePoints"`
	Status     ChangeStatus `json:"status"`
}

// SavePointBasis points either at the previous save point in the same
// change, or at the history step the change branched from.
type SavePointBasis struct {
	SavePointID string `json:"savePointId,omitempty"`
	HistoryStep int    `json:"historyStep,omitempty"`
}

// SavePoint is an immutable checkpoint within a change.
type SavePoint struct {
	ID                string         `json:"id"`
	ChangeID          string         `json:"changeId"`
	Timestamp         int64          `json:"timestamp"`
	Description       string         `json:"description"`
	Basis             SavePointBasis `json:"basis"`
	BaselineVersion   string         `json:"baselineVersion"`
	ModifiedArtifacts []string       `json:"modifiedArtifacts"`
}

// DirtyEntry is the workspace's record of an artifact that was edited
// since its basis version but not yet saved. Removed is a tombstone:
// when set, the artifact is dropped from the baseline on save rather
// than given a new version (deleteFile on a leaf artifact whose
// content never changed, only its reachability).
type DirtyEntry struct {
	VersionID string `json:"versionId,omitempty"` // basis version this draft (or removal) is relative to
	Draft     []byte `json:"draft,omitempty"`      // uncommitted content, promoted on save
	Removed   bool   `json:"removed,omitempty"`
}

// Workspace is a user's mutable staging area.
type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectName string `json:"project"`
	HistoryID   string `json:"history"`

	// RootDir is the artifact-id of the directory artifact listPaths
	// walks from. Fixed at workspace creation.
	RootDir string `json:"rootDir"`

	// Basis is the baseline version-id the workspace's dirty state is
	// layered on top of: the version last saved, delivered, or updated
	// to. It doubles as the ancestor for update's three-way merge.
	Basis string `json:"basis"`

	// BasisStep is the index into the parent History's Steps that Basis
	// descends from — the tip step observed at workspace creation or at
	// the last successful update. Deliver's compare-and-swap checks this
	// against the history's current tip step, not Basis itself: staging
	// and saving advance Basis to new, not-yet-delivered versions
	// without changing which history step they fork from.
	BasisStep int `json:"basisStep"`

	OpenChange string `json:"openChange,omitempty"`

	// DirtyVersions holds uncommitted edits, keyed by artifact-id:
	// content changes (modifyFile) and directory-binding changes
	// (addFile/moveFile/deleteFile touch the containing directory's
	// draft). Promoted to real ArtifactVersions on save.
	DirtyVersions map[string]DirtyEntry `json:"dirtyVersions,omitempty"`

	// PendingArtifacts holds artifact-ids created by addFile whose
	// version is already final (a brand-new artifact has no prior
	// content to diff against) but not yet bound into Basis's
	// baseline. Folded into the baseline on save.
	PendingArtifacts map[string]string `json:"pendingArtifacts,omitempty"`

	Conflicts []agent.Conflict `json:"conflicts,omitempty"`
}
