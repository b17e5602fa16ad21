package dirmerge

// changeKind classifies how one side moved an artifact id relative to
// the ancestor directory.
type changeKind string

const (
	added   changeKind = "added"
	removed changeKind = "removed"
	renamed changeKind = "renamed"
)

// change describes one artifact id's movement on one side relative to
// the ancestor. Ids absent from a changes map were untouched by that
// side.
type change struct {
	kind       changeKind
	artifactID string
	nameBefore string // valid for removed, renamed
	nameAfter  string // valid for added, renamed
}

// computeChanges classifies every artifact id that differs between
// ancestor and modified, keyed by artifact id.
func computeChanges(ancestor, modified Directory) map[string]change {
	changes := make(map[string]change)

	ancByID := make(map[string]string, len(ancestor))
	for _, b := range ancestor {
		ancByID[b.ArtifactID] = b.Name
	}
	modByID := make(map[string]string, len(modified))
	for _, b := range modified {
		modByID[b.ArtifactID] = b.Name
	}

	for id, modName := range modByID {
		ancName, inAncestor := ancByID[id]
		if !inAncestor {
			changes[id] = change{kind: added, artifactID: id, nameAfter: modName}
			continue
		}
		if ancName != modName {
			changes[id] = change{kind: renamed, artifactID: id, nameBefore: ancName, nameAfter: modName}
		}
	}
	for id, ancName := range ancByID {
		if _, stillPresent := modByID[id]; !stillPresent {
			changes[id] = change{kind: removed, artifactID: id, nameBefore: ancName}
		}
	}

	return changes
}
