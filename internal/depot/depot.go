package depot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
	"github.com/polytope-vcs/polytope/internal/kv"
)

// Depot is the object store: content-addressed Artifacts and
// ArtifactVersions plus the mutable indices layered on a kv.Store.
// Safe for concurrent use; per-workspace and per-history operations
// serialise through locks keyed by id (spec.md §5).
type Depot struct {
	store    kv.Store
	agents   *agent.Registry
	locks    sync.Map // id string -> *sync.Mutex, used for workspaces and histories
}

// New constructs a Depot over store, using agents to encode/decode and
// merge artifact content.
func New(store kv.Store, agents *agent.Registry) *Depot {
	return &Depot{store: store, agents: agents}
}

func (d *Depot) lockFor(id string) *sync.Mutex {
	l, _ := d.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// WithLock runs fn while holding the per-id lock, as required for any
// operation that reads or writes a workspace's dirty state or a
// history's tip (spec.md §5).
func (d *Depot) WithLock(id string, fn func() error) error {
	l := d.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func encode(op string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, newError(Internal, op, "marshal", err)
	}
	return data, nil
}

func decode(op string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return newError(Corrupt, op, "unmarshal", err)
	}
	return nil
}

// --- Projects ---

func (d *Depot) CreateProject(ctx context.Context, name, description, rootHistoryID string) (*Project, error) {
	const op = "CreateProject"
	if _, found, err := d.store.Get(ctx, kv.ColumnProjects, name); err != nil {
		return nil, newError(Internal, op, "check existing project", err)
	} else if found {
		return nil, newError(Duplicate, op, fmt.Sprintf("project %q already exists", name), nil)
	}

	p := &Project{Name: name, Description: description, RootHistory: rootHistoryID}
	data, err := encode(op, p)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnProjects, name, data); err != nil {
		return nil, newError(Internal, op, "write project", err)
	}
	return p, nil
}

func (d *Depot) GetProject(ctx context.Context, name string) (*Project, error) {
	const op = "GetProject"
	data, found, err := d.store.Get(ctx, kv.ColumnProjects, name)
	if err != nil {
		return nil, newError(Internal, op, "read project", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("project %q", name), nil)
	}
	var p Project
	if err := decode(op, data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Artifacts ---

func (d *Depot) CreateArtifact(ctx context.Context, artifactType agent.Type, creator, projectID string, metadata map[string]any, timestamp int64) (*Artifact, error) {
	const op = "CreateArtifact"
	a := &Artifact{
		ID:           ids.New(ids.KindArtifact),
		ArtifactType: artifactType,
		Timestamp:    timestamp,
		Creator:      creator,
		ProjectID:    projectID,
		Metadata:     metadata,
	}
	data, err := encode(op, a)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnArtifacts, a.ID, data); err != nil {
		return nil, newError(Internal, op, "write artifact", err)
	}
	return a, nil
}

func (d *Depot) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	const op = "GetArtifact"
	data, found, err := d.store.Get(ctx, kv.ColumnArtifacts, id)
	if err != nil {
		return nil, newError(Internal, op, "read artifact", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("artifact %q", id), nil)
	}
	var a Artifact
	if err := decode(op, data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Artifact versions ---

// CreateArtifactVersion stores a new immutable version and returns it.
// content must already be encoded by the artifact's agent.
func (d *Depot) CreateArtifactVersion(ctx context.Context, artifactID, creator string, content []byte, parents []string, metadata map[string]any, timestamp int64) (*ArtifactVersion, error) {
	const op = "CreateArtifactVersion"
	v := &ArtifactVersion{
		ID:         ids.New(ids.KindVersion),
		ArtifactID: artifactID,
		Creator:    creator,
		Timestamp:  timestamp,
		Content:    content,
		Parents:    parents,
		Metadata:   metadata,
	}
	data, err := encode(op, v)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnVersions, v.ID, data); err != nil {
		return nil, newError(Internal, op, "write version", err)
	}
	return v, nil
}

func (d *Depot) GetArtifactVersion(ctx context.Context, id string) (*ArtifactVersion, error) {
	const op = "GetArtifactVersion"
	data, found, err := d.store.Get(ctx, kv.ColumnVersions, id)
	if err != nil {
		return nil, newError(Internal, op, "read version", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("version %q", id), nil)
	}
	var v ArtifactVersion
	if err := decode(op, data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeContent runs the agent registered for artifactType over raw
// version content.
func (d *Depot) DecodeContent(artifactType agent.Type, content []byte) (any, error) {
	a := d.agents.MustLookup(artifactType)
	return a.Decode(content)
}

// Agents exposes the registry so callers (workspace, baseline merge)
// can encode/merge values without reaching into depot internals.
func (d *Depot) Agents() *agent.Registry { return d.agents }

func (d *Depot) Store() kv.Store { return d.store }

// --- Histories ---

func (d *Depot) CreateHistory(ctx context.Context, projectName, name, parentID string, forkStep int, initialBaselineVersion string) (*History, error) {
	const op = "CreateHistory"
	h := &History{
		ID:          ids.New(ids.KindHistory),
		ProjectName: projectName,
		Name:        name,
		ParentID:    parentID,
		ForkStep:    forkStep,
		Steps:       []HistoryStep{{BaselineVersion: initialBaselineVersion}},
	}
	data, err := encode(op, h)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnHistories, h.ID, data); err != nil {
		return nil, newError(Internal, op, "write history", err)
	}
	return h, nil
}

func (d *Depot) GetHistory(ctx context.Context, id string) (*History, error) {
	const op = "GetHistory"
	data, found, err := d.store.Get(ctx, kv.ColumnHistories, id)
	if err != nil {
		return nil, newError(Internal, op, "read history", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("history %q", id), nil)
	}
	var h History
	if err := decode(op, data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// AdvanceHistoryTip appends a step to h if h's current tip still
// matches expectedTipStep (the step count the caller last observed).
// Returns OutOfDate if another writer has advanced the history since.
// Callers must hold the per-history lock (WithLock(historyID, ...))
// for the duration of the compare-and-swap.
func (d *Depot) AdvanceHistoryTip(ctx context.Context, historyID string, expectedTipStep int, baselineVersion string) (*History, error) {
	const op = "AdvanceHistoryTip"
	h, err := d.GetHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if len(h.Steps)-1 != expectedTipStep {
		return nil, newError(OutOfDate, op, fmt.Sprintf("history %q tip is at step %d, expected %d", historyID, len(h.Steps)-1, expectedTipStep), nil)
	}
	h.Steps = append(h.Steps, HistoryStep{BaselineVersion: baselineVersion})
	data, err := encode(op, h)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnHistories, h.ID, data); err != nil {
		return nil, newError(Internal, op, "write history", err)
	}
	return h, nil
}

// --- Workspaces ---

func (d *Depot) CreateWorkspace(ctx context.Context, projectName, historyID, name, rootDir, basis string, basisStep int) (*Workspace, error) {
	const op = "CreateWorkspace"

	var duplicate bool
	err := d.store.Iterate(ctx, kv.ColumnWorkspaces, func(key string, value []byte) error {
		var w Workspace
		if err := json.Unmarshal(value, &w); err != nil {
			return err
		}
		if w.ProjectName == projectName && w.Name == name {
			duplicate = true
		}
		return nil
	})
	if err != nil {
		return nil, newError(Internal, op, "scan workspaces", err)
	}
	if duplicate {
		return nil, newError(Duplicate, op, fmt.Sprintf("workspace %q already exists in project %q", name, projectName), nil)
	}

	w := &Workspace{
		ID:          ids.New(ids.KindWorkspace),
		Name:        name,
		ProjectName: projectName,
		HistoryID:   historyID,
		RootDir:     rootDir,
		Basis:       basis,
		BasisStep:   basisStep,
	}
	if err := d.putWorkspace(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (d *Depot) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	const op = "GetWorkspace"
	data, found, err := d.store.Get(ctx, kv.ColumnWorkspaces, id)
	if err != nil {
		return nil, newError(Internal, op, "read workspace", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("workspace %q", id), nil)
	}
	var w Workspace
	if err := decode(op, data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (d *Depot) putWorkspace(ctx context.Context, w *Workspace) error {
	const op = "putWorkspace"
	data, err := encode(op, w)
	if err != nil {
		return err
	}
	if err := d.store.Put(ctx, kv.ColumnWorkspaces, w.ID, data); err != nil {
		return newError(Internal, op, "write workspace", err)
	}
	return nil
}

// SaveWorkspace persists w's current state. Callers must already hold
// the per-workspace lock.
func (d *Depot) SaveWorkspace(ctx context.Context, w *Workspace) error {
	return d.putWorkspace(ctx, w)
}
