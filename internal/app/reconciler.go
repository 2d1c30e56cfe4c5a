package app

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"appforge/pkg/domain"
)

// ReconcileResult reports what a batch changed.
type ReconcileResult struct {
	Updated []domain.Artifact
	Deleted []string
}

// Reconcile applies a batch of file operations to the owner's artifact set
// in batch order. Each operation commits individually (blob first, then
// metadata); on the first failure the remainder of the batch is abandoned
// and a ReconcileError reports the failing path and the committed count.
// Already-committed operations are not rolled back.
func (a *App) Reconcile(ctx context.Context, ownerID string, batch []domain.FileOperation) (ReconcileResult, error) {
	var res ReconcileResult
	committed := 0
	for _, op := range batch {
		cleanPath, err := validateArtifactPath(op.Path)
		if err != nil {
			return res, &ReconcileError{Path: op.Path, Committed: committed, Err: err}
		}
		switch op.Action {
		case domain.ActionDelete:
			deleted, err := a.deleteArtifact(ctx, ownerID, cleanPath)
			if err != nil {
				return res, &ReconcileError{Path: cleanPath, Committed: committed, Err: err}
			}
			if deleted {
				res.Deleted = append(res.Deleted, cleanPath)
			}
		case domain.ActionAdd, domain.ActionUpdate:
			artifact, err := a.writeArtifact(ctx, ownerID, cleanPath, op.Content)
			if err != nil {
				return res, &ReconcileError{Path: cleanPath, Committed: committed, Err: err}
			}
			res.Updated = append(res.Updated, artifact)
		default:
			return res, &ReconcileError{Path: cleanPath, Committed: committed, Err: fmt.Errorf("unknown action %q", op.Action)}
		}
		committed++
	}
	return res, nil
}

// writeArtifact creates version 1 or supersedes the current version,
// recording the old revision in the history log.
func (a *App) writeArtifact(ctx context.Context, ownerID, cleanPath, content string) (domain.Artifact, error) {
	existing, found, err := a.store.GetArtifact(ownerID, cleanPath)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("load artifact: %w", err)
	}

	artifact := domain.Artifact{
		OwnerID:      ownerID,
		Path:         cleanPath,
		Content:      content,
		ContentType:  contentTypeFor(cleanPath),
		Size:         int64(len(content)),
		Version:      1,
		LastModified: time.Now().UTC(),
		ModifiedBy:   ownerID,
	}
	if found {
		artifact.Version = existing.Version + 1
		artifact.PreviousVersions = append(existing.PreviousVersions, domain.ArtifactVersion{
			Version:    existing.Version,
			Content:    existing.Content,
			ModifiedAt: existing.LastModified,
			ModifiedBy: existing.ModifiedBy,
		})
	}

	key := blobKey(ownerID, cleanPath)
	if err := a.objects.Put(ctx, key, strings.NewReader(content), artifact.Size, artifact.ContentType); err != nil {
		return domain.Artifact{}, fmt.Errorf("store blob: %w", err)
	}
	if err := a.store.SaveArtifact(artifact); err != nil {
		return domain.Artifact{}, fmt.Errorf("store metadata: %w", err)
	}
	return artifact, nil
}

// deleteArtifact removes blob and metadata. Deleting an absent path is a
// no-op, not an error.
func (a *App) deleteArtifact(ctx context.Context, ownerID, cleanPath string) (bool, error) {
	_, found, err := a.store.GetArtifact(ownerID, cleanPath)
	if err != nil {
		return false, fmt.Errorf("load artifact: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := a.objects.Delete(ctx, blobKey(ownerID, cleanPath)); err != nil {
		return false, fmt.Errorf("delete blob: %w", err)
	}
	if err := a.store.DeleteArtifact(ownerID, cleanPath); err != nil {
		return false, fmt.Errorf("delete metadata: %w", err)
	}
	return true, nil
}

// validateArtifactPath normalizes a relative file path and rejects anything
// that could resolve outside the owner's namespace.
func validateArtifactPath(p string) (string, error) {
	raw := p
	p = strings.TrimSpace(p)
	if p == "" || strings.ContainsRune(p, 0) || strings.Contains(p, "\\") {
		return "", &InvalidPathError{Path: raw}
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return "", &InvalidPathError{Path: raw}
	}
	// Reject ".." segments before cleaning: an interior traversal like
	// "dir/../index.html" must error, not alias onto "index.html".
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", &InvalidPathError{Path: raw}
		}
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", &InvalidPathError{Path: raw}
	}
	return clean, nil
}

func blobKey(ownerID, cleanPath string) string {
	return ownerID + "/" + cleanPath
}

func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(p))); ct != "" {
		return ct
	}
	return "text/plain"
}
