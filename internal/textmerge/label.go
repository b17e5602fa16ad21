// Package textmerge implements the LCS-anchored three-way line merge
// described in spec §4.2: rather than transforming edit scripts (as
// classic diff3 does), each side's edits are labelled and anchored to
// the nearest downstream unmodified line, then edits sharing an anchor
// are coalesced into a single block and rendered by one of four
// policies. Edits on the two sides that anchor to different unmodified
// lines fall into different blocks and never conflict; a block
// conflicts only when both sides changed it, and changed it
// differently.
package textmerge

import "bytes"

// LineKind classifies a single labelled line relative to the ancestor.
type LineKind int

const (
	Deleted LineKind = iota
	Inserted
	Unmodified
)

// LabeledLine is one line of a modified side (source or target),
// classified relative to the ancestor and anchored to the index (in
// the ancestor) of the next unmodified line that follows it.
type LabeledLine struct {
	Kind      LineKind
	Line      string
	BaseIndex int // meaningful for Deleted and Unmodified
	ModIndex  int // meaningful for Inserted and Unmodified
	Anchor    int
}

// SplitLines splits content on '\n', retaining the terminator on every
// line but the (possibly absent) final one, matching how the original
// bytes must be reconstructable by concatenation.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, string(content[start:i+1]))
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, string(content[start:]))
	}
	return lines
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	return buf.Bytes()
}

// lcsPair is one element of the longest common subsequence between an
// ancestor and a modified line sequence: a pair of indices, strictly
// increasing in both coordinates across the sequence.
type lcsPair struct {
	baseIndex int
	modIndex  int
}

// lcs computes the longest common subsequence of two line sequences by
// standard dynamic programming, returning the aligned index pairs in
// ascending order. Lines are compared by exact string equality,
// including their terminators, so a trailing-newline change is a real
// edit, not noise.
func lcs(ancestor, modified []string) []lcsPair {
	n, m := len(ancestor), len(modified)
	// dp[i][j] = length of LCS of ancestor[i:], modified[j:]
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if ancestor[i] == modified[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var pairs []lcsPair
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case ancestor[i] == modified[j]:
			pairs = append(pairs, lcsPair{baseIndex: i, modIndex: j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// label walks the LCS alignment of ancestor and modified, emitting a
// LabeledLine for every line of both sequences (spec §4.2 step 1).
func label(ancestor, modified []string) []LabeledLine {
	pairs := lcs(ancestor, modified)

	var out []LabeledLine
	baseI, modI := 0, 0
	for _, p := range pairs {
		// Deleted/Inserted lines preceding this pair anchor to the
		// unmodified line that follows them (p.baseIndex); the
		// unmodified line itself anchors past its own position, so it
		// falls into the next downstream block instead of sharing one
		// with the edits before it.
		for baseI < p.baseIndex {
			out = append(out, LabeledLine{Kind: Deleted, Line: ancestor[baseI], BaseIndex: baseI, Anchor: p.baseIndex})
			baseI++
		}
		for modI < p.modIndex {
			out = append(out, LabeledLine{Kind: Inserted, Line: modified[modI], ModIndex: modI, Anchor: p.baseIndex})
			modI++
		}
		out = append(out, LabeledLine{Kind: Unmodified, Line: ancestor[p.baseIndex], BaseIndex: p.baseIndex, ModIndex: p.modIndex, Anchor: p.baseIndex + 1})
		baseI = p.baseIndex + 1
		modI = p.modIndex + 1
	}

	// Trailing edits after the last LCS hit anchor to a virtual
	// end-of-file position, len(ancestor)+1.
	anchor := len(ancestor) + 1
	for baseI < len(ancestor) {
		out = append(out, LabeledLine{Kind: Deleted, Line: ancestor[baseI], BaseIndex: baseI, Anchor: anchor})
		baseI++
	}
	for modI < len(modified) {
		out = append(out, LabeledLine{Kind: Inserted, Line: modified[modI], ModIndex: modI, Anchor: anchor})
		modI++
	}

	return out
}
