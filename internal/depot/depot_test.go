package depot

import (
	"context"
	"testing"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/kv"
)

func newTestDepot() *Depot {
	registry := agent.NewRegistry()
	return New(kv.NewMemoryStore(), registry)
}

func TestCreateAndGetProject(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	p, err := d.CreateProject(ctx, "test", "a test project", "his_root")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := d.GetProject(ctx, "test")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != p.Name || got.RootHistory != p.RootHistory {
		t.Errorf("GetProject = %+v, want %+v", got, p)
	}
}

func TestCreateProjectDuplicate(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	if _, err := d.CreateProject(ctx, "test", "", ""); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	_, err := d.CreateProject(ctx, "test", "", "")
	if !Is(err, Duplicate) {
		t.Errorf("CreateProject duplicate = %v, want Duplicate kind", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	_, err := d.GetProject(context.Background(), "missing")
	if !Is(err, NotFound) {
		t.Errorf("GetProject(missing) = %v, want NotFound kind", err)
	}
}

func TestCreateArtifactAndVersion(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	art, err := d.CreateArtifact(ctx, agent.TypeText, "alice", "test", nil, 1000)
	if err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	v, err := d.CreateArtifactVersion(ctx, art.ID, "alice", []byte("hello\n"), nil, nil, 1001)
	if err != nil {
		t.Fatalf("CreateArtifactVersion: %v", err)
	}

	gotArt, err := d.GetArtifact(ctx, art.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if gotArt.ArtifactType != agent.TypeText {
		t.Errorf("GetArtifact.ArtifactType = %q, want %q", gotArt.ArtifactType, agent.TypeText)
	}

	gotV, err := d.GetArtifactVersion(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetArtifactVersion: %v", err)
	}
	if string(gotV.Content) != "hello\n" {
		t.Errorf("GetArtifactVersion.Content = %q, want %q", gotV.Content, "hello\n")
	}
}

func TestAdvanceHistoryTip(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	h, err := d.CreateHistory(ctx, "test", "main", "", 0, "ver_0")
	if err != nil {
		t.Fatalf("CreateHistory: %v", err)
	}
	if len(h.Steps) != 1 {
		t.Fatalf("CreateHistory should start with 1 step, got %d", len(h.Steps))
	}

	advanced, err := d.AdvanceHistoryTip(ctx, h.ID, 0, "ver_1")
	if err != nil {
		t.Fatalf("AdvanceHistoryTip: %v", err)
	}
	if len(advanced.Steps) != 2 {
		t.Fatalf("AdvanceHistoryTip should add a step, got %d steps", len(advanced.Steps))
	}
}

func TestAdvanceHistoryTipOutOfDate(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	h, err := d.CreateHistory(ctx, "test", "main", "", 0, "ver_0")
	if err != nil {
		t.Fatalf("CreateHistory: %v", err)
	}

	_, err = d.AdvanceHistoryTip(ctx, h.ID, 5, "ver_1")
	if !Is(err, OutOfDate) {
		t.Errorf("AdvanceHistoryTip with stale expectedTipStep = %v, want OutOfDate kind", err)
	}
}

func TestChangeLifecycle(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	c, err := d.CreateChange(ctx, "my-change", "his_1", "ver_0")
	if err != nil {
		t.Fatalf("CreateChange: %v", err)
	}
	if c.Status != ChangeOpen {
		t.Errorf("new change status = %q, want Open", c.Status)
	}

	if err := d.AbandonChange(ctx, c.ID); err != nil {
		t.Fatalf("AbandonChange: %v", err)
	}
	got, err := d.GetChange(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChange: %v", err)
	}
	if got.Status != ChangeAbandoned {
		t.Errorf("abandoned change status = %q, want Abandoned", got.Status)
	}

	if err := d.AbandonChange(ctx, c.ID); !Is(err, InvalidParameter) {
		t.Errorf("AbandonChange on non-open change = %v, want InvalidParameter kind", err)
	}
}

func TestSavePointAppendsToChange(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	c, err := d.CreateChange(ctx, "my-change", "his_1", "ver_0")
	if err != nil {
		t.Fatalf("CreateChange: %v", err)
	}

	sp, err := d.CreateSavePoint(ctx, c.ID, "first save", SavePointBasis{HistoryStep: 0}, "ver_1", []string{"art_1"}, 2000)
	if err != nil {
		t.Fatalf("CreateSavePoint: %v", err)
	}

	gotChange, err := d.GetChange(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChange: %v", err)
	}
	if len(gotChange.SavePoints) != 1 || gotChange.SavePoints[0] != sp.ID {
		t.Errorf("GetChange.SavePoints = %v, want [%s]", gotChange.SavePoints, sp.ID)
	}

	gotSP, err := d.GetSavePoint(ctx, sp.ID)
	if err != nil {
		t.Fatalf("GetSavePoint: %v", err)
	}
	if len(gotSP.ModifiedArtifacts) != 1 || gotSP.ModifiedArtifacts[0] != "art_1" {
		t.Errorf("GetSavePoint.ModifiedArtifacts = %v, want [art_1]", gotSP.ModifiedArtifacts)
	}
}

func TestCreateWorkspaceDuplicate(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	if _, err := d.CreateWorkspace(ctx, "test", "his_1", "mytest", "art_root", "ver_0", 0); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	_, err := d.CreateWorkspace(ctx, "test", "his_1", "mytest", "art_root", "ver_0", 0)
	if !Is(err, Duplicate) {
		t.Errorf("CreateWorkspace duplicate = %v, want Duplicate kind", err)
	}
}

func TestMergeBaselinesAgreement(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	ancestor := Baseline{"art_a": "ver_1"}
	source := Baseline{"art_a": "ver_2"}
	target := Baseline{"art_a": "ver_2"}

	result, err := d.MergeBaselines(ctx, ancestor, source, target)
	if err != nil {
		t.Fatalf("MergeBaselines: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("agreement should have no conflicts, got %d", len(result.Conflicts))
	}
	if result.Proposed["art_a"] != "ver_2" {
		t.Errorf("Proposed[art_a] = %q, want ver_2", result.Proposed["art_a"])
	}
}

func TestMergeBaselinesUnilateralChange(t *testing.T) {
	t.Parallel()
	d := newTestDepot()
	ctx := context.Background()

	ancestor := Baseline{"art_a": "ver_1", "art_b": "ver_1"}
	source := Baseline{"art_a": "ver_2", "art_b": "ver_1"}
	target := Baseline{"art_a": "ver_1", "art_b": "ver_1"}

	result, err := d.MergeBaselines(ctx, ancestor, source, target)
	if err != nil {
		t.Fatalf("MergeBaselines: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("unilateral change should have no conflicts, got %d", len(result.Conflicts))
	}
	if result.Proposed["art_a"] != "ver_2" {
		t.Errorf("Proposed[art_a] = %q, want ver_2 (source's change)", result.Proposed["art_a"])
	}
	if result.Proposed["art_b"] != "ver_1" {
		t.Errorf("Proposed[art_b] = %q, want ver_1 (unchanged)", result.Proposed["art_b"])
	}
}

func TestMergeBaselinesDivergentRecursesIntoAgent(t *testing.T) {
	t.Parallel()
	registry := agent.NewRegistry()
	d := &Depot{store: kv.NewMemoryStore(), agents: registry}
	ctx := context.Background()

	art, err := d.CreateArtifact(ctx, "stub", "alice", "test", nil, 0)
	if err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}
	registry.Register(&recordingAgent{typ: art.ArtifactType})

	ancV, _ := d.CreateArtifactVersion(ctx, art.ID, "alice", []byte("anc"), nil, nil, 0)
	srcV, _ := d.CreateArtifactVersion(ctx, art.ID, "alice", []byte("src"), nil, nil, 1)
	tgtV, _ := d.CreateArtifactVersion(ctx, art.ID, "alice", []byte("tgt"), nil, nil, 2)

	ancestor := Baseline{art.ID: ancV.ID}
	source := Baseline{art.ID: srcV.ID}
	target := Baseline{art.ID: tgtV.ID}

	result, err := d.MergeBaselines(ctx, ancestor, source, target)
	if err != nil {
		t.Fatalf("MergeBaselines: %v", err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 sub-merge conflict, got %d", len(result.Conflicts))
	}
	mergedID := result.Proposed[art.ID]
	mergedVersion, err := d.GetArtifactVersion(ctx, mergedID)
	if err != nil {
		t.Fatalf("GetArtifactVersion: %v", err)
	}
	if string(mergedVersion.Content) != "merged:anc:src:tgt" {
		t.Errorf("merged content = %q, want %q", mergedVersion.Content, "merged:anc:src:tgt")
	}
}

// recordingAgent is a minimal agent.Agent stub for exercising
// MergeBaselines' recursive sub-merge path without depending on a
// real agent package.
type recordingAgent struct{ typ agent.Type }

func (r *recordingAgent) Type() agent.Type { return r.typ }
func (r *recordingAgent) Encode(v any) ([]byte, error) {
	s, _ := v.(string)
	return []byte(s), nil
}
func (r *recordingAgent) Decode(b []byte) (any, error) { return string(b), nil }
func (r *recordingAgent) ContentHash(v any) (string, error) {
	return "", nil
}
func (r *recordingAgent) Merge(artifactID, av, sv, tv string, a, s, tg []byte) (*agent.MergeResult, error) {
	merged := []byte("merged:" + string(a) + ":" + string(s) + ":" + string(tg))
	return &agent.MergeResult{
		ArtifactType:  r.typ,
		ArtifactID:    artifactID,
		ProposedMerge: merged,
		Conflicts: []agent.Conflict{
			{ID: "cfl_1", ArtifactID: artifactID, ArtifactType: r.typ, Kind: "TEST_CONFLICT"},
		},
	}, nil
}
