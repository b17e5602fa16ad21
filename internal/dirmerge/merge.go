package dirmerge

import (
	"fmt"
	"sort"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
)

// ConflictDetails is the agent-specific payload carried in
// agent.Conflict.Details for directory conflicts.
type ConflictDetails struct {
	Name           string `json:"name,omitempty"`
	SourceBinding  string `json:"sourceBinding,omitempty"`
	TargetBinding  string `json:"targetBinding,omitempty"`
}

// Merge performs the three-way directory merge of spec §4.3: each
// side's changes since the ancestor are classified per artifact id
// (added, removed, or renamed), then resolved against the other
// side's change to the same id through the conflict matrix below.
// Combinations the matrix marks impossible indicate a corrupted
// history and are reported as errors rather than silently resolved.
func Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*agent.MergeResult, error) {
	ancestor, err := Decode(ancestorContent)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: decode ancestor: %w", err)
	}
	source, err := Decode(sourceContent)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: decode source: %w", err)
	}
	target, err := Decode(targetContent)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: decode target: %w", err)
	}

	sourceChanges := computeChanges(ancestor, source)
	targetChanges := computeChanges(ancestor, target)

	result := target
	var conflicts []agent.Conflict
	handled := make(map[string]bool, len(sourceChanges))

	// Step 1: source Adds that collide by name with a different
	// target Add produce ADD_ADD_NAME; source's binding is kept under
	// a disambiguated name rather than overwriting target's.
	sourceIDs := sortedKeys(sourceChanges)
	for _, id := range sourceIDs {
		sc := sourceChanges[id]
		if sc.kind != added {
			continue
		}
		for _, tc := range targetChanges {
			if tc.kind == added && tc.artifactID != id && tc.nameAfter == sc.nameAfter {
				altName := fmt.Sprintf("%s_%s", sc.nameAfter, ids.New(ids.KindConflict))
				result = result.With(Binding{Name: altName, ArtifactID: id})
				conflicts = append(conflicts, newConflict(artifactID, "ADD_ADD_NAME", sourceVersion, targetVersion,
					ConflictDetails{Name: sc.nameAfter, SourceBinding: id, TargetBinding: tc.artifactID}))
				handled[id] = true
			}
		}
	}

	// Step 2: resolve each source change against the target's change
	// to the same artifact id, per the matrix in spec §4.3.
	for _, id := range sourceIDs {
		if handled[id] {
			continue
		}
		sc := sourceChanges[id]
		tc, hasTargetChange := targetChanges[id]
		if !hasTargetChange {
			// Step 3 below applies source's change unopposed.
			continue
		}
		handled[id] = true

		switch {
		case sc.kind == added && tc.kind == added:
			if sc.nameAfter == tc.nameAfter {
				continue // identical add on both sides: no-op
			}
			conflicts = append(conflicts, newConflict(artifactID, "ADD_ADD_ID", sourceVersion, targetVersion,
				ConflictDetails{SourceBinding: sc.nameAfter, TargetBinding: tc.nameAfter}))
			// keep target's binding: result already has it

		case sc.kind == renamed && tc.kind == renamed:
			if sc.nameAfter == tc.nameAfter {
				continue // same rename on both sides: no-op
			}
			conflicts = append(conflicts, newConflict(artifactID, "MOD_MOD", sourceVersion, targetVersion,
				ConflictDetails{SourceBinding: sc.nameAfter, TargetBinding: tc.nameAfter}))
			// keep target's binding: result already has it

		case sc.kind == renamed && tc.kind == removed:
			conflicts = append(conflicts, newConflict(artifactID, "MOD_DEL", sourceVersion, targetVersion,
				ConflictDetails{SourceBinding: sc.nameAfter}))
			result = result.With(Binding{Name: sc.nameAfter, ArtifactID: id})

		case sc.kind == removed && tc.kind == renamed:
			conflicts = append(conflicts, newConflict(artifactID, "DEL_MOD", sourceVersion, targetVersion,
				ConflictDetails{TargetBinding: tc.nameAfter}))
			// keep target's binding: result already has it

		case sc.kind == removed && tc.kind == removed:
			// compatible: both sides removed it, result already lacks it.

		default:
			return nil, fmt.Errorf("dirmerge: internal: impossible combination for artifact %s: source=%s target=%s", id, sc.kind, tc.kind)
		}
	}

	// Step 3: apply source changes that the target side left
	// untouched.
	for _, id := range sourceIDs {
		if handled[id] {
			continue
		}
		sc := sourceChanges[id]
		switch sc.kind {
		case added:
			result = result.With(Binding{Name: sc.nameAfter, ArtifactID: id})
		case renamed:
			result = result.WithoutName(sc.nameBefore).With(Binding{Name: sc.nameAfter, ArtifactID: id})
		case removed:
			result = result.WithoutName(sc.nameBefore)
		}
	}

	proposed, err := Encode(result)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: encode result: %w", err)
	}

	return &agent.MergeResult{
		ArtifactType:    agent.TypeDirectory,
		ArtifactID:      artifactID,
		AncestorVersion: ancestorVersion,
		SourceVersion:   sourceVersion,
		TargetVersion:   targetVersion,
		ProposedMerge:   proposed,
		Conflicts:       conflicts,
	}, nil
}

func newConflict(artifactID, kind, sourceVersion, targetVersion string, details ConflictDetails) agent.Conflict {
	encoded, err := encodeConflictDetails(details)
	if err != nil {
		// ConflictDetails is a plain struct of strings; marshal cannot fail.
		panic(fmt.Sprintf("dirmerge: encode conflict details: %v", err))
	}
	return agent.Conflict{
		ID:            ids.New(ids.KindConflict),
		ArtifactID:    artifactID,
		ArtifactType:  agent.TypeDirectory,
		Kind:          kind,
		SourceVersion: sourceVersion,
		TargetVersion: targetVersion,
		Details:       encoded,
	}
}

func sortedKeys(m map[string]change) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
