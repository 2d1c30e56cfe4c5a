package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ArtifactModel struct {
	ID               uint           `gorm:"primaryKey"`
	OwnerID          string         `gorm:"not null;uniqueIndex:idx_artifact_owner_path"`
	Path             string         `gorm:"not null;uniqueIndex:idx_artifact_owner_path"`
	Content          string         `gorm:"type:text;not null"`
	ContentType      string         `gorm:"not null"`
	Size             int64          `gorm:"not null"`
	Version          int            `gorm:"not null"`
	PreviousVersions datatypes.JSON `gorm:"type:jsonb"`
	LastModified     time.Time      `gorm:"not null"`
	ModifiedBy       string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type DeploymentModel struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"not null;uniqueIndex"`
	Status         string `gorm:"not null"`
	Framework      string
	ProjectURL     string
	LastDeployment time.Time
	ContainerID    string
	ContainerState string
	ContainerLogs  string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type ChatEntryModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type SecretModel struct {
	Name      string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
