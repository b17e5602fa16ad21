package dirmerge

import (
	"fmt"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/ids"
)

// Agent is the agent.Agent for directory artifacts. Its decoded value
// type is Directory.
type Agent struct{}

// NewAgent constructs the directory agent. Stateless; safe to share.
func NewAgent() *Agent { return &Agent{} }

var _ agent.Agent = (*Agent)(nil)

func (a *Agent) Type() agent.Type { return agent.TypeDirectory }

func (a *Agent) Encode(value any) ([]byte, error) {
	d, ok := value.(Directory)
	if !ok {
		return nil, fmt.Errorf("dirmerge: encode: value is %T, want Directory", value)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return Encode(d)
}

func (a *Agent) Decode(content []byte) (any, error) {
	return Decode(content)
}

func (a *Agent) ContentHash(value any) (string, error) {
	content, err := a.Encode(value)
	if err != nil {
		return "", err
	}
	return ids.HashBytes(content), nil
}

func (a *Agent) Merge(artifactID, ancestorVersion, sourceVersion, targetVersion string, ancestorContent, sourceContent, targetContent []byte) (*agent.MergeResult, error) {
	return Merge(artifactID, ancestorVersion, sourceVersion, targetVersion, ancestorContent, sourceContent, targetContent)
}
