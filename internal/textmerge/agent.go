package textmerge

import (
	"fmt"
	"os"
	"strings"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
)

// Agent is the agent.FileAgent for text artifacts: files, and any
// artifact whose content is plain UTF-8 lines. Its decoded value type
// is string — the full content, terminators included.
type Agent struct{}

// NewAgent constructs the text agent. Stateless; safe to share.
func NewAgent() *Agent { return &Agent{} }

var _ agent.FileAgent = (*Agent)(nil)

func (a *Agent) Type() agent.Type { return agent.TypeText }

func (a *Agent) Encode(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("textmerge: encode: value is %T, want string", value)
	}
	return []byte(s), nil
}

func (a *Agent) Decode(content []byte) (any, error) {
	return string(content), nil
}

func (a *Agent) ContentHash(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("textmerge: content hash: value is %T, want string", value)
	}
	return ids.HashBytes([]byte(s)), nil
}

func (a *Agent) Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*agent.MergeResult, error) {
	return Merge(artifactID, ancestorVersion, sourceVersion, targetVersion, ancestorContent, sourceContent, targetContent)
}

// textExtensions is the lookup table CanHandle consults to decide
// whether a path is text; extension-based detection proper is
// explicitly out of scope (spec §1) and lives with whatever caller
// configures the registry — this is a minimal default covering the
// common cases exercised by the workspace tests.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".c": true, ".h": true,
	".yaml": true, ".yml": true, ".json": true, ".sh": true, ".py": true,
}

func (a *Agent) CanHandle(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return true // extensionless files default to text
	}
	return textExtensions[path[idx:]]
}

func (a *Agent) ReadFromDisk(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("textmerge: read %s: %w", path, err)
	}
	return data, nil
}

func (a *Agent) WriteToDisk(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("textmerge: write %s: %w", path, err)
	}
	return nil
}
