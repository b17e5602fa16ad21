package depot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
)

// Baseline is the content of a distinguished artifact of type
// agent.TypeBaseline: a mapping from artifact-id to version-id. The
// top-level directory artifact-id is carried in the owning Artifact's
// metadata, not in the Baseline value itself.
type Baseline map[string]string

// BaselineAgent is the agent.Agent for baseline artifacts. Its merge
// recurses into the agent registry for every artifact-id both sides
// changed to different versions (spec.md §4.4).
type BaselineAgent struct {
	depot *Depot
}

// NewBaselineAgent constructs the baseline agent. It holds a back
// reference to the owning Depot because resolving a sub-merge needs
// to fetch the conflicting artifact's own versions and its agent.
func NewBaselineAgent(d *Depot) *BaselineAgent {
	return &BaselineAgent{depot: d}
}

var _ agent.Agent = (*BaselineAgent)(nil)

func (a *BaselineAgent) Type() agent.Type { return agent.TypeBaseline }

func (a *BaselineAgent) Encode(value any) ([]byte, error) {
	b, ok := value.(Baseline)
	if !ok {
		return nil, fmt.Errorf("depot: baseline encode: value is %T, want Baseline", value)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("depot: baseline encode: %w", err)
	}
	return data, nil
}

func (a *BaselineAgent) Decode(content []byte) (any, error) {
	if len(content) == 0 {
		return Baseline{}, nil
	}
	var b Baseline
	if err := json.Unmarshal(content, &b); err != nil {
		return nil, fmt.Errorf("depot: baseline decode: %w", err)
	}
	return b, nil
}

func (a *BaselineAgent) ContentHash(value any) (string, error) {
	content, err := a.Encode(value)
	if err != nil {
		return "", err
	}
	return ids.HashBytes(content), nil
}

// Merge decodes the three baselines, merges them with MergeBaselines,
// and flattens every sub-merge's conflicts into the result.
func (a *BaselineAgent) Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*agent.MergeResult, error) {
	var sides [3]Baseline
	for i, content := range [][]byte{ancestorContent, sourceContent, targetContent} {
		v, err := a.Decode(content)
		if err != nil {
			return nil, err
		}
		sides[i] = v.(Baseline)
	}
	merged, err := a.depot.MergeBaselines(context.Background(), sides[0], sides[1], sides[2])
	if err != nil {
		return nil, err
	}
	result := &agent.MergeResult{ArtifactType: agent.TypeBaseline, ArtifactID: artifactID, AncestorVersion: ancestorVersion, SourceVersion: sourceVersion, TargetVersion: targetVersion}
	for _, bc := range merged.Conflicts {
		result.Conflicts = append(result.Conflicts, bc.Conflicts...)
	}
	result.ProposedMerge, err = a.Encode(merged.Proposed)
	return result, err
}

// Get returns the version bound to artifactID, if any.
func (b Baseline) Get(artifactID string) (string, bool) {
	v, ok := b[artifactID]
	return v, ok
}

// Set returns a copy of b with artifactID bound to versionID.
func (b Baseline) Set(artifactID, versionID string) Baseline {
	out := b.clone()
	out[artifactID] = versionID
	return out
}

// Remove returns a copy of b with artifactID unbound.
func (b Baseline) Remove(artifactID string) Baseline {
	out := b.clone()
	delete(out, artifactID)
	return out
}

func (b Baseline) clone() Baseline {
	out := make(Baseline, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// BaselineConflict records one artifact-id whose sub-merge produced
// conflicts while merging two baselines.
type BaselineConflict struct {
	ArtifactID string
	Conflicts  []agent.Conflict
}

// BaselineMergeResult is the outcome of merging two baselines: the
// proposed merged map plus every sub-merge's conflicts.
type BaselineMergeResult struct {
	Proposed  Baseline
	Conflicts []BaselineConflict
}

// MergeBaselines performs the three-way baseline merge of spec.md §4.4: for
// every artifact-id present in any of the three maps, agreement wins
// outright, a unilateral change is taken as-is, and a genuine
// divergence recurses into that artifact's own agent to merge its
// versions, accumulating sub-conflicts. Sub-merges for distinct
// artifact-ids are independent and run concurrently.
func (d *Depot) MergeBaselines(ctx context.Context, ancestor, source, target Baseline) (*BaselineMergeResult, error) {
	idSet := make(map[string]struct{})
	for id := range ancestor {
		idSet[id] = struct{}{}
	}
	for id := range source {
		idSet[id] = struct{}{}
	}
	for id := range target {
		idSet[id] = struct{}{}
	}

	sortedIDs := make([]string, 0, len(idSet))
	for id := range idSet {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Strings(sortedIDs)

	proposed := make(Baseline, len(sortedIDs))
	conflictsByID := make(map[string][]agent.Conflict)
	subMerged := make(map[string]string)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range sortedIDs {
		id := id
		ancV, ancOK := ancestor[id]
		srcV, srcOK := source[id]
		tgtV, tgtOK := target[id]

		switch {
		case srcOK && tgtOK && srcV == tgtV:
			proposed[id] = srcV
			continue
		case !srcOK && !tgtOK:
			continue // removed on both sides
		case srcOK && ancV == srcV && tgtOK:
			proposed[id] = tgtV
			continue
		case tgtOK && ancV == tgtV && srcOK:
			proposed[id] = srcV
			continue
		case !srcOK && ancV == "" && tgtOK:
			proposed[id] = tgtV
			continue
		case !tgtOK && ancV == "" && srcOK:
			proposed[id] = srcV
			continue
		case srcOK && ancV == srcV && !tgtOK:
			continue // target removed, source unchanged: stays removed
		case tgtOK && ancV == tgtV && !srcOK:
			continue // source removed, target unchanged: stays removed
		}

		// Genuine divergence: both sides changed artifactID to
		// different versions. Resolve by recursing into the
		// artifact's own agent, concurrently with other divergences.
		g.Go(func() error {
			result, err := d.mergeArtifactVersions(gctx, id, ancV, srcV, tgtV)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			subMerged[id] = result.resultVersionID
			if len(result.conflicts) > 0 {
				conflictsByID[id] = result.conflicts
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for id, v := range subMerged {
		proposed[id] = v
	}

	var conflicts []BaselineConflict
	conflictIDs := make([]string, 0, len(conflictsByID))
	for id := range conflictsByID {
		conflictIDs = append(conflictIDs, id)
	}
	sort.Strings(conflictIDs)
	for _, id := range conflictIDs {
		conflicts = append(conflicts, BaselineConflict{ArtifactID: id, Conflicts: conflictsByID[id]})
	}

	return &BaselineMergeResult{Proposed: proposed, Conflicts: conflicts}, nil
}

type subMergeResult struct {
	resultVersionID string
	conflicts       []agent.Conflict
}

// mergeArtifactVersions resolves a single artifact-id's divergence by
// fetching its three versions, looking up the artifact's agent, and
// running the agent's own three-way merge. The merged content is
// stored as a new version with both sides as parents, whether or not
// conflicts remain — proposedMerge is always best-effort per
// spec.md §4.1.
func (d *Depot) mergeArtifactVersions(ctx context.Context, artifactID, ancestorVersionID, sourceVersionID, targetVersionID string) (*subMergeResult, error) {
	art, err := d.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	a := d.agents.MustLookup(art.ArtifactType)

	var ancestorContent []byte
	if ancestorVersionID != "" {
		ancestorVersion, err := d.GetArtifactVersion(ctx, ancestorVersionID)
		if err != nil {
			return nil, err
		}
		ancestorContent = ancestorVersion.Content
	}
	sourceVersion, err := d.GetArtifactVersion(ctx, sourceVersionID)
	if err != nil {
		return nil, err
	}
	targetVersion, err := d.GetArtifactVersion(ctx, targetVersionID)
	if err != nil {
		return nil, err
	}

	result, err := a.Merge(artifactID, ancestorVersionID, sourceVersionID, targetVersionID, ancestorContent, sourceVersion.Content, targetVersion.Content)
	if err != nil {
		return nil, newError(Internal, "mergeArtifactVersions", fmt.Sprintf("agent merge for artifact %q", artifactID), err)
	}

	merged, err := d.CreateArtifactVersion(ctx, artifactID, "", result.ProposedMerge, []string{sourceVersionID, targetVersionID}, nil, 0)
	if err != nil {
		return nil, err
	}

	return &subMergeResult{resultVersionID: merged.ID, conflicts: result.Conflicts}, nil
}
