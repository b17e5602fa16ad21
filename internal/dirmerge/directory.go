// Package dirmerge implements the directory agent: encode/decode of a
// directory value (a sequence of name→artifact-id bindings) and the
// semantic three-way merge described in spec §4.3, which distinguishes
// renames from remove+add by tracking bindings per artifact id rather
// than diffing name lists.
package dirmerge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Binding is one (name, artifactId) pair in a Directory.
type Binding struct {
	Name       string `json:"name"`
	ArtifactID string `json:"artifactId"`
}

// Directory is a sequence of bindings. Invariants (spec §3): every
// Name is non-empty and contains no '/'; names are unique within the
// directory; every ArtifactID appears at most once.
type Directory []Binding

// Validate checks the Directory invariants.
func (d Directory) Validate() error {
	names := make(map[string]bool, len(d))
	ids := make(map[string]bool, len(d))
	for _, b := range d {
		if b.Name == "" {
			return fmt.Errorf("dirmerge: empty name bound to %s", b.ArtifactID)
		}
		if strings.Contains(b.Name, "/") {
			return fmt.Errorf("dirmerge: name %q contains '/'", b.Name)
		}
		if names[b.Name] {
			return fmt.Errorf("dirmerge: duplicate name %q", b.Name)
		}
		if ids[b.ArtifactID] {
			return fmt.Errorf("dirmerge: artifact %s bound more than once", b.ArtifactID)
		}
		names[b.Name] = true
		ids[b.ArtifactID] = true
	}
	return nil
}

// ByName looks up a binding by name.
func (d Directory) ByName(name string) (Binding, bool) {
	for _, b := range d {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// ByID looks up a binding by artifact id.
func (d Directory) ByID(id string) (Binding, bool) {
	for _, b := range d {
		if b.ArtifactID == id {
			return b, true
		}
	}
	return Binding{}, false
}

// With returns a copy of d with any existing binding for b.ArtifactID
// or b.Name removed, and b added.
func (d Directory) With(b Binding) Directory {
	out := make(Directory, 0, len(d)+1)
	for _, existing := range d {
		if existing.ArtifactID == b.ArtifactID || existing.Name == b.Name {
			continue
		}
		out = append(out, existing)
	}
	return append(out, b)
}

// WithoutName returns a copy of d with the binding at name removed, if
// present.
func (d Directory) WithoutName(name string) Directory {
	out := make(Directory, 0, len(d))
	for _, b := range d {
		if b.Name == name {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Encode serialises a Directory to JSON.
func Encode(d Directory) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: encode: %w", err)
	}
	return data, nil
}

// Decode parses a JSON-encoded Directory.
func Decode(content []byte) (Directory, error) {
	if len(content) == 0 {
		return Directory{}, nil
	}
	var d Directory
	if err := json.Unmarshal(content, &d); err != nil {
		return nil, fmt.Errorf("dirmerge: decode: %w", err)
	}
	return d, nil
}
