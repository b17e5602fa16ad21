package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/polytope-vcs/polytope/internal/agent"
	"github.com/polytope-vcs/polytope/internal/depot"
)

// Checkout projects the workspace's current effective tree (baseline
// plus dirty overlay) onto destDir as ordinary files and directories,
// satisfying spec.md §6's "the workspace materialises whole files" —
// there is no partial or streaming checkout. Every FileAgent-capable
// artifact (currently text) is written through its own WriteToDisk, so
// the on-disk bytes match what that agent's Decode expects to read
// back. Directory artifacts are represented by the directory structure
// itself; an artifact of any other type whose agent is not a FileAgent
// makes Checkout fail with InvalidParameter.
func (m *Manager) Checkout(ctx context.Context, workspaceID, destDir string) error {
	w, err := m.depot.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	baseline, err := m.currentBaseline(ctx, w)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return depot.NewInternal("Checkout", fmt.Sprintf("create root %q", destDir), err)
	}

	var walk func(artifactID, diskPath string) error
	walk = func(artifactID, diskPath string) error {
		art, err := m.depot.GetArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		if art.ArtifactType == agent.TypeDirectory {
			if err := os.MkdirAll(diskPath, 0755); err != nil {
				return depot.NewInternal("Checkout", fmt.Sprintf("mkdir %q", diskPath), err)
			}
			dir, err := m.effectiveDirectory(ctx, w, baseline, artifactID)
			if err != nil {
				return err
			}
			for _, b := range dir {
				if err := walk(b.ArtifactID, filepath.Join(diskPath, b.Name)); err != nil {
					return err
				}
			}
			return nil
		}

		content, err := m.effectiveContent(ctx, w, baseline, artifactID)
		if err != nil {
			return err
		}
		fileAgent, ok := m.depot.Agents().MustLookup(art.ArtifactType).(agent.FileAgent)
		if !ok {
			return depot.NewInvalidParameter("Checkout", fmt.Sprintf("artifact type %q has no on-disk representation", art.ArtifactType))
		}
		return fileAgent.WriteToDisk(diskPath, content)
	}

	return walk(w.RootDir, destDir)
}

// DiskStatus compares the on-disk bytes at path (relative to destDir,
// the same root a prior Checkout wrote to) against the workspace's
// effective content for the artifact bound there, reporting whether
// the working copy has been edited out from under the dirty overlay —
// the disk-hash comparison spec.md §6 describes for detecting
// out-of-band edits to a checked-out file. It does not stage anything;
// callers that want the disk content treated as a new draft still call
// ModifyFile with the bytes this returns.
func (m *Manager) DiskStatus(ctx context.Context, workspaceID, destDir, filePath string) (diskContent []byte, dirty bool, err error) {
	w, err := m.depot.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, false, err
	}
	baseline, err := m.currentBaseline(ctx, w)
	if err != nil {
		return nil, false, err
	}

	artifactID, _, err := m.resolve(ctx, w, baseline, filePath)
	if err != nil {
		return nil, false, err
	}
	art, err := m.depot.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, false, err
	}
	fileAgent, ok := m.depot.Agents().MustLookup(art.ArtifactType).(agent.FileAgent)
	if !ok {
		return nil, false, depot.NewInvalidParameter("DiskStatus", fmt.Sprintf("artifact type %q has no on-disk representation", art.ArtifactType))
	}

	diskContent, err = fileAgent.ReadFromDisk(filepath.Join(destDir, filepath.FromSlash(filePath)))
	if err != nil {
		return nil, false, err
	}
	effective, err := m.effectiveContent(ctx, w, baseline, artifactID)
	if err != nil {
		return nil, false, err
	}
	return diskContent, string(diskContent) != string(effective), nil
}
