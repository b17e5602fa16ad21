// Package workspace implements spec.md §4.5: projecting a baseline
// onto a path tree, staging edits, and the operations that move a
// workspace's tip across save points and history steps.
//
// A workspace's view of the world is always "basis baseline plus
// dirty overlay": DirtyVersions holds uncommitted content and
// directory-binding edits, keyed by artifact-id; PendingArtifacts
// holds brand-new artifacts created by addFile that have no draft
// because their one and only version is already final. Both are
// promoted into a new baseline version on save and cleared.
package workspace

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/depot"
	"github.com/polytope-vcs/polytope/internal/dirmerge"
)

// Manager drives workspace operations against a Depot. It holds no
// per-workspace state itself — every method loads the current
// Workspace, operates under its lock, and persists the result.
type Manager struct {
	depot *depot.Depot
}

// New constructs a Manager over d.
func New(d *depot.Depot) *Manager {
	return &Manager{depot: d}
}

// CreateProject bootstraps a brand-new project: an empty root
// directory artifact, a baseline artifact bound to it, and the
// project's root history starting at that baseline. Not itself a
// spec.md §4.5 operation, but the minimal setup every other operation
// in this package assumes is already in place.
func (m *Manager) CreateProject(ctx context.Context, name, description, creator string, timestamp int64) (*depot.Project, error) {
	rootDirArt, err := m.depot.CreateArtifact(ctx, agent.TypeDirectory, creator, name, nil, timestamp)
	if err != nil {
		return nil, err
	}
	rootDirContent, err := dirmerge.Encode(dirmerge.Directory{})
	if err != nil {
		return nil, err
	}
	rootDirVersion, err := m.depot.CreateArtifactVersion(ctx, rootDirArt.ID, creator, rootDirContent, nil, nil, timestamp)
	if err != nil {
		return nil, err
	}

	baselineArt, err := m.depot.CreateArtifact(ctx, agent.TypeBaseline, creator, name, map[string]any{rootDirMetadataKey: rootDirArt.ID}, timestamp)
	if err != nil {
		return nil, err
	}
	baselineContent, err := m.depot.Agents().MustLookup(agent.TypeBaseline).Encode(depot.Baseline{rootDirArt.ID: rootDirVersion.ID})
	if err != nil {
		return nil, depot.NewInternal("CreateProject", "encode initial baseline", err)
	}
	baselineVersion, err := m.depot.CreateArtifactVersion(ctx, baselineArt.ID, creator, baselineContent, nil, nil, timestamp)
	if err != nil {
		return nil, err
	}

	h, err := m.depot.CreateHistory(ctx, name, "main", "", 0, baselineVersion.ID)
	if err != nil {
		return nil, err
	}

	return m.depot.CreateProject(ctx, name, description, h.ID)
}

// CreateWorkspace attaches a new workspace to history's current tip
// baseline (spec.md §4.5).
func (m *Manager) CreateWorkspace(ctx context.Context, projectName, historyID, name string) (*depot.Workspace, error) {
	h, err := m.depot.GetHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	tipStep := len(h.Steps) - 1
	tipVersionID := h.Steps[tipStep].BaselineVersion

	rootDir, err := m.rootDirOf(ctx, tipVersionID)
	if err != nil {
		return nil, err
	}

	return m.depot.CreateWorkspace(ctx, projectName, historyID, name, rootDir, tipVersionID, tipStep)
}

// rootDirOf returns the root directory artifact-id recorded on the
// baseline artifact owning baselineVersionID.
func (m *Manager) rootDirOf(ctx context.Context, baselineVersionID string) (string, error) {
	v, err := m.depot.GetArtifactVersion(ctx, baselineVersionID)
	if err != nil {
		return "", err
	}
	art, err := m.depot.GetArtifact(ctx, v.ArtifactID)
	if err != nil {
		return "", err
	}
	rootDir, _ := art.Metadata[rootDirMetadataKey].(string)
	if rootDir == "" {
		return "", depot.NewNotFound("rootDirOf", fmt.Sprintf("baseline %q carries no rootDir metadata", baselineVersionID))
	}
	return rootDir, nil
}

const rootDirMetadataKey = "rootDir"

// currentBaseline decodes the baseline w is currently layered on top
// of (w.Basis), ignoring dirty state.
func (m *Manager) currentBaseline(ctx context.Context, w *depot.Workspace) (depot.Baseline, error) {
	v, err := m.depot.GetArtifactVersion(ctx, w.Basis)
	if err != nil {
		return nil, err
	}
	decoded, err := m.depot.DecodeContent(agent.TypeBaseline, v.Content)
	if err != nil {
		return nil, err
	}
	return decoded.(depot.Baseline), nil
}

// effectiveContent returns the content a reader sees for artifactID
// right now: its draft if dirty, else its pending (newly created, not
// yet baselined) version, else its committed baseline version.
func (m *Manager) effectiveContent(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, artifactID string) ([]byte, error) {
	if entry, ok := w.DirtyVersions[artifactID]; ok {
		return entry.Draft, nil
	}
	if versionID, ok := w.PendingArtifacts[artifactID]; ok {
		v, err := m.depot.GetArtifactVersion(ctx, versionID)
		if err != nil {
			return nil, err
		}
		return v.Content, nil
	}
	versionID, ok := baseline.Get(artifactID)
	if !ok {
		return nil, depot.NewNotFound("effectiveContent", fmt.Sprintf("artifact %q not bound in baseline", artifactID))
	}
	v, err := m.depot.GetArtifactVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return v.Content, nil
}

func (m *Manager) effectiveDirectory(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, artifactID string) (dirmerge.Directory, error) {
	content, err := m.effectiveContent(ctx, w, baseline, artifactID)
	if err != nil {
		return nil, err
	}
	return dirmerge.Decode(content)
}

// resolve walks p (a "/"-joined path, "" meaning the root) from
// w.RootDir and returns the artifact-id bound at that path, along with
// every directory artifact-id visited, root first.
func (m *Manager) resolve(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, p string) (artifactID string, chain []string, err error) {
	chain = []string{w.RootDir}
	if p == "" {
		return w.RootDir, chain, nil
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")

	cursor := w.RootDir
	visited := map[string]bool{cursor: true}
	for i, seg := range segments {
		if err := m.requireDirectory(ctx, cursor); err != nil {
			return "", nil, err
		}
		dir, err := m.effectiveDirectory(ctx, w, baseline, cursor)
		if err != nil {
			return "", nil, err
		}
		binding, ok := dir.ByName(seg)
		if !ok {
			return "", nil, depot.NewParentMissing("resolve", fmt.Sprintf("path %q: %q does not exist", p, strings.Join(segments[:i+1], "/")))
		}
		cursor = binding.ArtifactID
		chain = append(chain, cursor)

		if i < len(segments)-1 {
			if visited[cursor] {
				return "", nil, depot.NewCorrupt("resolve", fmt.Sprintf("cycle detected walking %q", p))
			}
			visited[cursor] = true
		}
	}
	return cursor, chain, nil
}

// resolveParent resolves p's parent directory and returns its
// artifact-id plus p's final path segment. Fails ParentMissing if any
// intermediate component is absent, NotADirectory if a component
// along the way isn't a directory artifact.
func (m *Manager) resolveParent(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, p string) (parentID, leaf string, err error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", "", depot.NewInvalidParameter("resolveParent", "path must not be empty")
	}
	dir, file := path.Split(p)
	dir = strings.Trim(dir, "/")

	parentID, _, err = m.resolve(ctx, w, baseline, dir)
	if err != nil {
		return "", "", err
	}
	if err := m.requireDirectory(ctx, parentID); err != nil {
		return "", "", err
	}
	return parentID, file, nil
}

func (m *Manager) requireDirectory(ctx context.Context, artifactID string) error {
	art, err := m.depot.GetArtifact(ctx, artifactID)
	if err != nil {
		return err
	}
	if art.ArtifactType != agent.TypeDirectory {
		return depot.NewNotADirectory("requireDirectory", fmt.Sprintf("artifact %q is not a directory", artifactID))
	}
	return nil
}

// ListPaths walks the workspace's current view (basis baseline plus
// dirty overlay) from RootDir,
// returning every reachable path exactly once (spec.md §4.5,
// property 5 of spec.md §8).
func (m *Manager) ListPaths(ctx context.Context, workspaceID string) ([]string, error) {
	w, err := m.depot.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	baseline, err := m.currentBaseline(ctx, w)
	if err != nil {
		return nil, err
	}

	var paths []string
	visiting := make(map[string]bool)

	var walk func(artifactID, p string) error
	walk = func(artifactID, p string) error {
		if visiting[artifactID] {
			return depot.NewCorrupt("ListPaths", fmt.Sprintf("cycle at %q", p))
		}
		visiting[artifactID] = true
		defer delete(visiting, artifactID)

		paths = append(paths, p)

		art, err := m.depot.GetArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		if art.ArtifactType != agent.TypeDirectory {
			return nil
		}
		dir, err := m.effectiveDirectory(ctx, w, baseline, artifactID)
		if err != nil {
			return err
		}
		for _, b := range dir {
			childPath := b.Name
			if p != "" {
				childPath = p + "/" + b.Name
			}
			if err := walk(b.ArtifactID, childPath); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(w.RootDir, ""); err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// dirtyDraft returns the currently-staged directory for artifactID,
// creating one from the effective content if this is the first edit
// to that directory this session.
func (m *Manager) dirtyDraft(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, artifactID string) (dirmerge.Directory, string, error) {
	if entry, ok := w.DirtyVersions[artifactID]; ok {
		d, err := dirmerge.Decode(entry.Draft)
		return d, entry.VersionID, err
	}
	baseVersionID, ok := baseline.Get(artifactID)
	if !ok {
		baseVersionID = w.PendingArtifacts[artifactID]
	}
	d, err := m.effectiveDirectory(ctx, w, baseline, artifactID)
	return d, baseVersionID, err
}

func (m *Manager) stageDirectory(w *depot.Workspace, artifactID, baseVersionID string, dir dirmerge.Directory) error {
	data, err := dirmerge.Encode(dir)
	if err != nil {
		return err
	}
	if w.DirtyVersions == nil {
		w.DirtyVersions = make(map[string]depot.DirtyEntry)
	}
	w.DirtyVersions[artifactID] = depot.DirtyEntry{VersionID: baseVersionID, Draft: data}
	return nil
}

// AddFile creates a new artifact and initial version under path,
// creating no intermediate directories: every directory component
// along path must already exist (spec.md §4.5).
func (m *Manager) AddFile(ctx context.Context, workspaceID, creator, filePath string, artifactType agent.Type, content []byte, timestamp int64) (artifactID string, err error) {
	return artifactID, m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		baseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}

		parentID, leaf, err := m.resolveParent(ctx, w, baseline, filePath)
		if err != nil {
			return err
		}

		dir, baseVersionID, err := m.dirtyDraft(ctx, w, baseline, parentID)
		if err != nil {
			return err
		}
		if _, exists := dir.ByName(leaf); exists {
			return depot.NewPathExists("AddFile", fmt.Sprintf("%q already exists", filePath))
		}

		art, err := m.depot.CreateArtifact(ctx, artifactType, creator, w.ProjectName, nil, timestamp)
		if err != nil {
			return err
		}
		v, err := m.depot.CreateArtifactVersion(ctx, art.ID, creator, content, nil, nil, timestamp)
		if err != nil {
			return err
		}

		if err := m.stageDirectory(w, parentID, baseVersionID, dir.With(dirmerge.Binding{Name: leaf, ArtifactID: art.ID})); err != nil {
			return err
		}
		if w.PendingArtifacts == nil {
			w.PendingArtifacts = make(map[string]string)
		}
		w.PendingArtifacts[art.ID] = v.ID
		artifactID = art.ID

		return m.depot.SaveWorkspace(ctx, w)
	})
}

// ModifyFile stages new draft content for the artifact at path. The
// content is only promoted to a version on save.
func (m *Manager) ModifyFile(ctx context.Context, workspaceID, filePath string, content []byte) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		baseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}
		artifactID, _, err := m.resolve(ctx, w, baseline, filePath)
		if err != nil {
			return err
		}

		baseVersionID, ok := baseline.Get(artifactID)
		if !ok {
			baseVersionID = w.PendingArtifacts[artifactID]
		}
		if err := m.stageDraft(w, artifactID, baseVersionID, content); err != nil {
			return err
		}
		return m.depot.SaveWorkspace(ctx, w)
	})
}

func (m *Manager) stageDraft(w *depot.Workspace, artifactID, baseVersionID string, content []byte) error {
	if w.DirtyVersions == nil {
		w.DirtyVersions = make(map[string]depot.DirtyEntry)
	}
	w.DirtyVersions[artifactID] = depot.DirtyEntry{VersionID: baseVersionID, Draft: content}
	return nil
}

// stageRemoval tombstones artifactID so save drops it from the
// baseline instead of giving it a new version. A pending (not yet
// baselined) artifact is simply forgotten instead.
func (m *Manager) stageRemoval(w *depot.Workspace, baseline depot.Baseline, artifactID string) {
	if _, pending := w.PendingArtifacts[artifactID]; pending {
		delete(w.PendingArtifacts, artifactID)
		delete(w.DirtyVersions, artifactID)
		return
	}
	baseVersionID, _ := baseline.Get(artifactID)
	if w.DirtyVersions == nil {
		w.DirtyVersions = make(map[string]depot.DirtyEntry)
	}
	w.DirtyVersions[artifactID] = depot.DirtyEntry{VersionID: baseVersionID, Removed: true}
}

// MoveFile rebinds the artifact at src under dst. Two successive
// moves of the same artifact within one save stage a single binding
// change in the relevant directory draft(s), so the directory merge
// sees one Rename rather than an Add plus a Remove.
func (m *Manager) MoveFile(ctx context.Context, workspaceID, src, dst string) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		baseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}

		artifactID, _, err := m.resolve(ctx, w, baseline, src)
		if err != nil {
			return err
		}
		srcParentID, _, err := m.resolveParent(ctx, w, baseline, src)
		if err != nil {
			return err
		}
		dstParentID, dstLeaf, err := m.resolveParent(ctx, w, baseline, dst)
		if err != nil {
			return err
		}

		if srcParentID == dstParentID {
			dir, baseVersionID, err := m.dirtyDraft(ctx, w, baseline, srcParentID)
			if err != nil {
				return err
			}
			if err := m.stageDirectory(w, srcParentID, baseVersionID, dir.With(dirmerge.Binding{Name: dstLeaf, ArtifactID: artifactID})); err != nil {
				return err
			}
		} else {
			srcDir, srcBaseVersionID, err := m.dirtyDraft(ctx, w, baseline, srcParentID)
			if err != nil {
				return err
			}
			if err := m.stageDirectory(w, srcParentID, srcBaseVersionID, srcDir.WithoutName(path.Base(src))); err != nil {
				return err
			}
			dstDir, dstBaseVersionID, err := m.dirtyDraft(ctx, w, baseline, dstParentID)
			if err != nil {
				return err
			}
			if err := m.stageDirectory(w, dstParentID, dstBaseVersionID, dstDir.With(dirmerge.Binding{Name: dstLeaf, ArtifactID: artifactID})); err != nil {
				return err
			}
		}

		return m.depot.SaveWorkspace(ctx, w)
	})
}

// DeleteFile unbinds path from its parent directory and returns every
// artifact-id detached — path's own id, plus, if path is a directory,
// every descendant reachable from it. None of the returned artifacts
// are destroyed; they remain reachable via prior versions.
func (m *Manager) DeleteFile(ctx context.Context, workspaceID, filePath string) ([]string, error) {
	var detached []string
	err := m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		baseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}

		artifactID, _, err := m.resolve(ctx, w, baseline, filePath)
		if err != nil {
			return err
		}
		parentID, leaf, err := m.resolveParent(ctx, w, baseline, filePath)
		if err != nil {
			return err
		}

		detached, err = m.collectDescendants(ctx, w, baseline, artifactID)
		if err != nil {
			return err
		}
		for _, id := range detached {
			m.stageRemoval(w, baseline, id)
		}

		dir, baseVersionID, err := m.dirtyDraft(ctx, w, baseline, parentID)
		if err != nil {
			return err
		}
		if err := m.stageDirectory(w, parentID, baseVersionID, dir.WithoutName(leaf)); err != nil {
			return err
		}

		return m.depot.SaveWorkspace(ctx, w)
	})
	return detached, err
}

func (m *Manager) collectDescendants(ctx context.Context, w *depot.Workspace, baseline depot.Baseline, artifactID string) ([]string, error) {
	ids := []string{artifactID}
	art, err := m.depot.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if art.ArtifactType != agent.TypeDirectory {
		return ids, nil
	}
	dir, err := m.effectiveDirectory(ctx, w, baseline, artifactID)
	if err != nil {
		return nil, err
	}
	for _, b := range dir {
		children, err := m.collectDescendants(ctx, w, baseline, b.ArtifactID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, children...)
	}
	return ids, nil
}

// Save promotes every dirty artifact to a real version, folds pending
// artifacts into a new baseline, and records a SavePoint (spec.md
// §4.5, §4.6). resolvedConflicts must name every conflict currently
// pending on the workspace, or save fails ConflictsPending.
func (m *Manager) Save(ctx context.Context, workspaceID, creator, description string, resolvedConflicts []string, timestamp int64) (*depot.SavePoint, error) {
	var sp *depot.SavePoint
	err := m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		if err := requireAllResolved(w.Conflicts, resolvedConflicts); err != nil {
			return err
		}

		baseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}

		newBaseline := baseline
		for artifactID, entry := range w.DirtyVersions {
			if entry.Removed {
				newBaseline = newBaseline.Remove(artifactID)
				continue
			}
			var parents []string
			if entry.VersionID != "" {
				parents = []string{entry.VersionID}
			}
			v, err := m.depot.CreateArtifactVersion(ctx, artifactID, creator, entry.Draft, parents, nil, timestamp)
			if err != nil {
				return err
			}
			newBaseline = newBaseline.Set(artifactID, v.ID)
		}
		for artifactID, versionID := range w.PendingArtifacts {
			// A pending artifact edited again before save (a freshly
			// added directory that then gains a child) already has its
			// final content recorded as a DirtyVersions draft, chained
			// from this same pending version; don't let this loop
			// clobber it with the empty version it started from.
			if _, dirty := w.DirtyVersions[artifactID]; dirty {
				continue
			}
			newBaseline = newBaseline.Set(artifactID, versionID)
		}

		modified := diffBaselines(baseline, newBaseline)

		baselineVersion, err := m.depot.GetArtifactVersion(ctx, w.Basis)
		if err != nil {
			return err
		}
		newBaselineContent, err := m.depot.Agents().MustLookup(agent.TypeBaseline).Encode(newBaseline)
		if err != nil {
			return depot.NewInternal("Save", "encode baseline", err)
		}
		newBaselineVersion, err := m.depot.CreateArtifactVersion(ctx, baselineVersion.ArtifactID, creator, newBaselineContent, []string{w.Basis}, nil, timestamp)
		if err != nil {
			return err
		}

		basis, err := m.nextSavePointBasis(ctx, w)
		if err != nil {
			return err
		}
		sp, err = m.depot.CreateSavePoint(ctx, w.OpenChange, description, basis, newBaselineVersion.ID, modified, timestamp)
		if err != nil {
			return err
		}

		w.Basis = newBaselineVersion.ID
		w.DirtyVersions = nil
		w.PendingArtifacts = nil
		w.Conflicts = nil
		return m.depot.SaveWorkspace(ctx, w)
	})
	return sp, err
}

// diffBaselines returns every artifact-id whose version-id differs
// between before and after, including ids added or removed entirely —
// spec.md §8 property 6's definition of a save point's
// modifiedArtifacts.
func diffBaselines(before, after depot.Baseline) []string {
	seen := make(map[string]bool, len(before)+len(after))
	var out []string
	for id, v := range before {
		if after[id] != v {
			seen[id] = true
		}
	}
	for id, v := range after {
		if before[id] != v {
			seen[id] = true
		}
	}
	out = make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func requireAllResolved(pending []agent.Conflict, resolved []string) error {
	if len(pending) == 0 {
		return nil
	}
	resolvedSet := make(map[string]bool, len(resolved))
	for _, id := range resolved {
		resolvedSet[id] = true
	}
	for _, c := range pending {
		if !resolvedSet[c.ID] {
			return depot.NewConflictsPending("Save", fmt.Sprintf("conflict %q not resolved", c.ID))
		}
	}
	return nil
}

// nextSavePointBasis chains to the open change's most recent save
// point, or to the history step the change branched from if this is
// its first (spec.md §4.6).
func (m *Manager) nextSavePointBasis(ctx context.Context, w *depot.Workspace) (depot.SavePointBasis, error) {
	if w.OpenChange == "" {
		return depot.SavePointBasis{}, depot.NewInvalidParameter("Save", "workspace has no open change")
	}
	change, err := m.depot.GetChange(ctx, w.OpenChange)
	if err != nil {
		return depot.SavePointBasis{}, err
	}
	if len(change.SavePoints) == 0 {
		return depot.SavePointBasis{HistoryStep: w.BasisStep}, nil
	}
	prior := change.SavePoints[len(change.SavePoints)-1]
	return depot.SavePointBasis{SavePointID: prior}, nil
}

// Update advances a workspace whose history has progressed since the
// workspace was based, three-way-merging the workspace's own basis
// (as ancestor and as the unmodified source, since dirty edits have
// not yet been folded into a baseline version to merge from) against
// the latest history-tip baseline. Materialises any conflicts onto
// the workspace; leaves dirty state the user must resolve and save.
func (m *Manager) Update(ctx context.Context, workspaceID string) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		h, err := m.depot.GetHistory(ctx, w.HistoryID)
		if err != nil {
			return err
		}
		tipStep := len(h.Steps) - 1
		tipVersionID := h.Steps[tipStep].BaselineVersion
		if tipVersionID == w.Basis {
			return nil
		}

		ancestorBaseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}
		tipVersion, err := m.depot.GetArtifactVersion(ctx, tipVersionID)
		if err != nil {
			return err
		}
		decoded, err := m.depot.DecodeContent(agent.TypeBaseline, tipVersion.Content)
		if err != nil {
			return err
		}
		tipBaseline := decoded.(depot.Baseline)

		result, err := m.depot.MergeBaselines(ctx, ancestorBaseline, ancestorBaseline, tipBaseline)
		if err != nil {
			return err
		}

		return m.applyMergeResult(ctx, w, tipVersionID, tipStep, result)
	})
}

// Integrate three-way-merges a range of changes from another history
// into this workspace. The ancestor is the baseline at fromVersion and
// the source is the baseline at toVersion, both as the caller gives
// them; the fork point between the two histories is not computed, and
// no record of earlier integrations is kept or consulted.
func (m *Manager) Integrate(ctx context.Context, workspaceID, fromVersion, toVersion string) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}

		currentBaseline, err := m.currentBaseline(ctx, w)
		if err != nil {
			return err
		}
		fromV, err := m.depot.GetArtifactVersion(ctx, fromVersion)
		if err != nil {
			return err
		}
		decodedFrom, err := m.depot.DecodeContent(agent.TypeBaseline, fromV.Content)
		if err != nil {
			return err
		}
		ancestorBaseline := decodedFrom.(depot.Baseline)

		toV, err := m.depot.GetArtifactVersion(ctx, toVersion)
		if err != nil {
			return err
		}
		decodedTo, err := m.depot.DecodeContent(agent.TypeBaseline, toV.Content)
		if err != nil {
			return err
		}
		sourceBaseline := decodedTo.(depot.Baseline)

		result, err := m.depot.MergeBaselines(ctx, ancestorBaseline, sourceBaseline, currentBaseline)
		if err != nil {
			return err
		}

		return m.applyMergeResult(ctx, w, w.Basis, w.BasisStep, result)
	})
}

// applyMergeResult stages a merge's proposed baseline as a single
// dirty entry on the workspace's baseline artifact and records any
// conflicts, leaving newBasisVersionID as the ancestor for the next
// save. newBasisStep updates BasisStep, the history step Deliver's
// compare-and-swap checks against — Update passes the tip step it just
// merged up to; Integrate leaves it unchanged since integrating from
// another history doesn't move this workspace's own history forward.
// The caller must hold the workspace's lock.
func (m *Manager) applyMergeResult(ctx context.Context, w *depot.Workspace, newBasisVersionID string, newBasisStep int, result *depot.BaselineMergeResult) error {
	baselineVersion, err := m.depot.GetArtifactVersion(ctx, w.Basis)
	if err != nil {
		return err
	}
	content, err := m.depot.Agents().MustLookup(agent.TypeBaseline).Encode(result.Proposed)
	if err != nil {
		return depot.NewInternal("applyMergeResult", "encode merged baseline", err)
	}

	w.Basis = newBasisVersionID
	w.BasisStep = newBasisStep
	if err := m.stageDraft(w, baselineVersion.ArtifactID, newBasisVersionID, content); err != nil {
		return err
	}

	var conflicts []agent.Conflict
	for _, bc := range result.Conflicts {
		conflicts = append(conflicts, bc.Conflicts...)
	}
	w.Conflicts = append(w.Conflicts, conflicts...)

	return m.depot.SaveWorkspace(ctx, w)
}

// Deliver promotes the workspace's tip baseline to a new step of the
// workspace's own history (w.HistoryID), failing OutOfDate if the history has advanced past
// the workspace's basis (spec.md §5's compare-and-swap requirement).
func (m *Manager) Deliver(ctx context.Context, workspaceID, description string) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		if len(w.DirtyVersions) > 0 || len(w.PendingArtifacts) > 0 {
			return depot.NewInvalidParameter("Deliver", "workspace has unsaved dirty state")
		}

		var deliverErr error
		lockErr := m.depot.WithLock(w.HistoryID, func() error {
			if _, err := m.depot.AdvanceHistoryTip(ctx, w.HistoryID, w.BasisStep, w.Basis); err != nil {
				deliverErr = err
				return nil
			}
			return nil
		})
		if lockErr != nil {
			return lockErr
		}
		if deliverErr != nil {
			return deliverErr
		}

		w.BasisStep++
		if w.OpenChange != "" {
			if err := m.depot.CloseChange(ctx, w.OpenChange); err != nil {
				return err
			}
		}
		return m.depot.SaveWorkspace(ctx, w)
	})
}

// AbandonChanges closes the workspace's open change as Abandoned and
// discards dirty state.
func (m *Manager) AbandonChanges(ctx context.Context, workspaceID, reason string) error {
	return m.depot.WithLock(workspaceID, func() error {
		w, err := m.depot.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return err
		}
		if w.OpenChange != "" {
			if err := m.depot.AbandonChange(ctx, w.OpenChange); err != nil {
				return err
			}
		}
		w.OpenChange = ""
		w.DirtyVersions = nil
		w.PendingArtifacts = nil
		w.Conflicts = nil
		return m.depot.SaveWorkspace(ctx, w)
	})
}
