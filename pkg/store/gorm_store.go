package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"appforge/pkg/domain"
)

const migrateLockID int64 = 84318431

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ArtifactModel{}, &DeploymentModel{}, &ChatEntryModel{}, &SecretModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveArtifact stores or replaces the live artifact row for (owner, path).
func (s *GormStore) SaveArtifact(a domain.Artifact) error {
	model, err := artifactToModel(a)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "content_type", "size", "version", "previous_versions", "last_modified", "modified_by", "updated_at"}),
	}).Create(&model).Error
}

// GetArtifact looks up a live artifact by (owner, path).
func (s *GormStore) GetArtifact(ownerID, path string) (domain.Artifact, bool, error) {
	var model ArtifactModel
	if err := s.db.Where("owner_id = ? AND path = ?", ownerID, path).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Artifact{}, false, nil
		}
		return domain.Artifact{}, false, err
	}
	artifact, err := artifactFromModel(model)
	if err != nil {
		return domain.Artifact{}, false, err
	}
	return artifact, true, nil
}

// ListArtifactsByOwner returns the owner's live artifact set ordered by path.
func (s *GormStore) ListArtifactsByOwner(ownerID string) ([]domain.Artifact, error) {
	var models []ArtifactModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("path ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Artifact, 0, len(models))
	for _, m := range models {
		artifact, err := artifactFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, artifact)
	}
	return res, nil
}

// DeleteArtifact removes the live row. Missing rows are not an error.
func (s *GormStore) DeleteArtifact(ownerID, path string) error {
	return s.db.Where("owner_id = ? AND path = ?", ownerID, path).Delete(&ArtifactModel{}).Error
}

// UpsertDeployment stores or replaces the owner's deployment record.
func (s *GormStore) UpsertDeployment(d domain.Deployment) error {
	model := deploymentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "framework", "project_url", "last_deployment", "container_id", "container_state", "container_logs", "updated_at"}),
	}).Create(&model).Error
}

// GetDeploymentByOwner returns the owner's deployment record.
func (s *GormStore) GetDeploymentByOwner(ownerID string) (domain.Deployment, bool, error) {
	var model DeploymentModel
	if err := s.db.Where("owner_id = ?", ownerID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Deployment{}, false, nil
		}
		return domain.Deployment{}, false, err
	}
	return deploymentFromModel(model), true, nil
}

// AppendChatEntry stores one immutable chat history record.
func (s *GormStore) AppendChatEntry(entry domain.ChatEntry) error {
	model := chatEntryToModel(entry)
	return s.db.Create(&model).Error
}

// ListChatEntries returns the owner's chat history ordered by creation time.
func (s *GormStore) ListChatEntries(ownerID string, limit int) ([]domain.ChatEntry, error) {
	query := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ChatEntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatEntry, 0, len(models))
	for _, m := range models {
		res = append(res, chatEntryFromModel(m))
	}
	return res, nil
}

// GetSecret returns a named secret value.
func (s *GormStore) GetSecret(name string) (string, bool, error) {
	var model SecretModel
	if err := s.db.First(&model, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}

func artifactToModel(a domain.Artifact) (ArtifactModel, error) {
	history, err := json.Marshal(a.PreviousVersions)
	if err != nil {
		return ArtifactModel{}, fmt.Errorf("marshal previous versions: %w", err)
	}
	now := time.Now().UTC()
	return ArtifactModel{
		OwnerID:          a.OwnerID,
		Path:             a.Path,
		Content:          a.Content,
		ContentType:      a.ContentType,
		Size:             a.Size,
		Version:          a.Version,
		PreviousVersions: datatypes.JSON(history),
		LastModified:     a.LastModified,
		ModifiedBy:       a.ModifiedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func artifactFromModel(m ArtifactModel) (domain.Artifact, error) {
	var history []domain.ArtifactVersion
	if len(m.PreviousVersions) > 0 {
		if err := json.Unmarshal(m.PreviousVersions, &history); err != nil {
			return domain.Artifact{}, fmt.Errorf("unmarshal previous versions: %w", err)
		}
	}
	return domain.Artifact{
		OwnerID:          m.OwnerID,
		Path:             m.Path,
		Content:          m.Content,
		ContentType:      m.ContentType,
		Size:             m.Size,
		Version:          m.Version,
		LastModified:     m.LastModified,
		ModifiedBy:       m.ModifiedBy,
		PreviousVersions: history,
	}, nil
}

func deploymentToModel(d domain.Deployment) DeploymentModel {
	now := time.Now().UTC()
	return DeploymentModel{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Status:         string(d.Status),
		Framework:      d.Framework,
		ProjectURL:     d.ProjectURL,
		LastDeployment: d.LastDeployment,
		ContainerID:    d.ContainerID,
		ContainerState: string(d.ContainerState),
		ContainerLogs:  d.ContainerLogs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func deploymentFromModel(m DeploymentModel) domain.Deployment {
	return domain.Deployment{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Status:         domain.DeploymentStatus(m.Status),
		Framework:      m.Framework,
		ProjectURL:     m.ProjectURL,
		LastDeployment: m.LastDeployment,
		ContainerID:    m.ContainerID,
		ContainerState: domain.ContainerState(m.ContainerState),
		ContainerLogs:  m.ContainerLogs,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func chatEntryToModel(e domain.ChatEntry) ChatEntryModel {
	return ChatEntryModel{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Role:      e.Role,
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
	}
}

func chatEntryFromModel(m ChatEntryModel) domain.ChatEntry {
	return domain.ChatEntry{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
