package store

import (
	"appforge/pkg/domain"
)

// Store defines persistence operations for artifacts, deployments,
// chat history, and secrets.
type Store interface {
	// artifacts
	SaveArtifact(a domain.Artifact) error
	GetArtifact(ownerID, path string) (domain.Artifact, bool, error)
	ListArtifactsByOwner(ownerID string) ([]domain.Artifact, error)
	DeleteArtifact(ownerID, path string) error

	// deployments (one record per owner)
	UpsertDeployment(d domain.Deployment) error
	GetDeploymentByOwner(ownerID string) (domain.Deployment, bool, error)

	// chat history (append-only)
	AppendChatEntry(entry domain.ChatEntry) error
	ListChatEntries(ownerID string, limit int) ([]domain.ChatEntry, error)

	// secrets
	GetSecret(name string) (string, bool, error)
}
