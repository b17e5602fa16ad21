package textmerge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
)

// Exact byte sequences for conflict markers, per spec §6.
const (
	markerStart = "<<<<<< VERSION FROM "
	markerMid   = "====== VERSION FROM "
	markerEnd   = ">>>>>>\n"
)

// Block groups the labelled lines of both sides that share an anchor
// (spec §4.2 step 2).
type Block struct {
	Anchor      int
	SourceLines []LabeledLine
	TargetLines []LabeledLine
}

// coalesce groups labelled lines from both sides by anchor, emitting
// blocks in ascending anchor order.
func coalesce(sourceLabeled, targetLabeled []LabeledLine) []Block {
	sourceByAnchor := groupByAnchor(sourceLabeled)
	targetByAnchor := groupByAnchor(targetLabeled)

	anchorSet := make(map[int]struct{}, len(sourceByAnchor)+len(targetByAnchor))
	for a := range sourceByAnchor {
		anchorSet[a] = struct{}{}
	}
	for a := range targetByAnchor {
		anchorSet[a] = struct{}{}
	}

	anchors := make([]int, 0, len(anchorSet))
	for a := range anchorSet {
		anchors = append(anchors, a)
	}
	sort.Ints(anchors)

	blocks := make([]Block, 0, len(anchors))
	for _, a := range anchors {
		blocks = append(blocks, Block{
			Anchor:      a,
			SourceLines: sourceByAnchor[a],
			TargetLines: targetByAnchor[a],
		})
	}
	return blocks
}

func groupByAnchor(labeled []LabeledLine) map[int][]LabeledLine {
	out := make(map[int][]LabeledLine)
	for _, l := range labeled {
		out[l.Anchor] = append(out[l.Anchor], l)
	}
	return out
}

// keptContent returns the lines that survive into the merged output:
// Inserted and Unmodified entries, in order. Deleted entries are
// dropped.
func keptContent(lines []LabeledLine) []string {
	var kept []string
	for _, l := range lines {
		if l.Kind != Deleted {
			kept = append(kept, l.Line)
		}
	}
	return kept
}

// sameEdit reports whether two labelled-line slices represent
// identical edits: equal length, and every positional pair matches on
// (label, baseIndex, anchor, content).
func sameEdit(a, b []LabeledLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].BaseIndex != b[i].BaseIndex ||
			a[i].Anchor != b[i].Anchor || a[i].Line != b[i].Line {
			return false
		}
	}
	return true
}

func allUnmodified(lines []LabeledLine) bool {
	for _, l := range lines {
		if l.Kind != Unmodified {
			return false
		}
	}
	return true
}

// renderedBlock is the output of rendering one Block: the lines it
// contributes to the proposed merge, plus any conflict raised.
type renderedBlock struct {
	lines    []string
	conflict *agent.Conflict
}

// render applies the four policies of spec §4.2 step 3, in order, to
// a single block.
func render(b Block, sourceLabel, targetLabel, artifactID string) renderedBlock {
	// Policy 1: identical edits.
	if sameEdit(b.SourceLines, b.TargetLines) {
		return renderedBlock{lines: keptContent(b.SourceLines)}
	}

	// Policy 2: target untouched.
	if allUnmodified(b.TargetLines) {
		return renderedBlock{lines: keptContent(b.SourceLines)}
	}

	// Policy 3: source untouched.
	if allUnmodified(b.SourceLines) {
		return renderedBlock{lines: keptContent(b.TargetLines)}
	}

	// Policy 4: conflict.
	sourceKept := keptContent(b.SourceLines)
	targetKept := keptContent(b.TargetLines)

	var buf bytes.Buffer
	buf.WriteString(markerStart)
	buf.WriteString(sourceLabel)
	buf.WriteString("\n")
	for _, l := range sourceKept {
		buf.WriteString(l)
	}
	buf.WriteString(markerMid)
	buf.WriteString(targetLabel)
	buf.WriteString("\n")
	for _, l := range targetKept {
		buf.WriteString(l)
	}
	buf.WriteString(markerEnd)

	conflict := &agent.Conflict{
		ID:            ids.New(ids.KindConflict),
		ArtifactID:    artifactID,
		ArtifactType:  agent.TypeText,
		Kind:          "TEXT_CONFLICT",
		SourceVersion: sourceLabel,
		TargetVersion: targetLabel,
	}

	return renderedBlock{lines: []string{buf.String()}, conflict: conflict}
}

// ConflictDetails is the agent-specific payload carried in
// agent.Conflict.Details for text conflicts: the byte offsets of the
// enclosed conflict-marker block within ProposedMerge.
type ConflictDetails struct {
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

// Merge performs the three-way line merge described in spec §4.2 and
// aggregates every block's conflicts into the result (spec §9 notes
// the original's failure to do this as a defect; this is the fix).
func Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*agent.MergeResult, error) {
	ancestorLines := SplitLines(ancestorContent)
	sourceLines := SplitLines(sourceContent)
	targetLines := SplitLines(targetContent)

	sourceLabeled := label(ancestorLines, sourceLines)
	targetLabeled := label(ancestorLines, targetLines)

	blocks := coalesce(sourceLabeled, targetLabeled)

	var merged bytes.Buffer
	var conflicts []agent.Conflict
	for _, b := range blocks {
		rb := render(b, sourceVersion, targetVersion, artifactID)
		start := merged.Len()
		for _, l := range rb.lines {
			merged.WriteString(l)
		}
		if rb.conflict != nil {
			details := ConflictDetails{StartOffset: start, EndOffset: merged.Len()}
			encoded, err := encodeConflictDetails(details)
			if err != nil {
				return nil, fmt.Errorf("textmerge: encode conflict details: %w", err)
			}
			rb.conflict.Details = encoded
			conflicts = append(conflicts, *rb.conflict)
		}
	}

	return &agent.MergeResult{
		ArtifactType:    agent.TypeText,
		ArtifactID:      artifactID,
		AncestorVersion: ancestorVersion,
		SourceVersion:   sourceVersion,
		TargetVersion:   targetVersion,
		ProposedMerge:   merged.Bytes(),
		Conflicts:       conflicts,
	}, nil
}
