package domain

import "time"

type FileAction string

const (
	ActionAdd    FileAction = "add"
	ActionUpdate FileAction = "update"
	ActionDelete FileAction = "delete"
)

// Valid reports whether the action is one of add/update/delete.
func (a FileAction) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

type DeploymentStatus string

const (
	DeployPending  DeploymentStatus = "pending"
	DeployDeployed DeploymentStatus = "deployed"
	DeployError    DeploymentStatus = "error"
)

type ContainerState string

const (
	ContainerNone     ContainerState = "none"
	ContainerCreating ContainerState = "creating"
	ContainerRunning  ContainerState = "running"
	ContainerStopped  ContainerState = "stopped"
	ContainerError    ContainerState = "error"
)

// Artifact is one versioned project file owned by a user.
type Artifact struct {
	OwnerID          string            `json:"ownerId"`
	Path             string            `json:"path"`
	Content          string            `json:"content"`
	ContentType      string            `json:"contentType"`
	Size             int64             `json:"size"`
	Version          int               `json:"version"`
	LastModified     time.Time         `json:"lastModified"`
	ModifiedBy       string            `json:"modifiedBy"`
	PreviousVersions []ArtifactVersion `json:"previousVersions,omitempty"`
}

// ArtifactVersion is one superseded revision, recorded on every overwrite.
type ArtifactVersion struct {
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modifiedAt"`
	ModifiedBy string    `json:"modifiedBy"`
}

// FileOperation is one add/update/delete produced by an orchestration cycle.
// Content is required for add/update and ignored for delete.
type FileOperation struct {
	Action  FileAction `json:"action"`
	Path    string     `json:"path"`
	Content string     `json:"content,omitempty"`
}

// Deployment is the per-owner preview deployment record. One row per owner;
// container fields mirror the last observed container reality.
type Deployment struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"ownerId"`
	Status         DeploymentStatus `json:"status"`
	Framework      string           `json:"framework"`
	ProjectURL     string           `json:"projectUrl,omitempty"`
	LastDeployment time.Time        `json:"lastDeployment"`
	ContainerID    string           `json:"containerId,omitempty"`
	ContainerState ContainerState   `json:"containerState"`
	ContainerLogs  string           `json:"containerLogs,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ChatEntry is one immutable prompt/response audit record.
type ChatEntry struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
