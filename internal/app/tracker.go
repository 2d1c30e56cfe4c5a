package app

import (
	"context"
	"time"

	"appforge/internal/util"
	"appforge/pkg/domain"
)

// DeploymentStatus returns the owner's deployment record. When no deploy
// was ever requested an empty record with container state "none" is
// returned with found=false.
func (a *App) DeploymentStatus(ownerID string) (domain.Deployment, bool, error) {
	record, found, err := a.store.GetDeploymentByOwner(ownerID)
	if err != nil {
		return domain.Deployment{}, false, err
	}
	if !found {
		return domain.Deployment{OwnerID: ownerID, ContainerState: domain.ContainerNone}, false, nil
	}
	return record, true, nil
}

// recordDeployError moves the record to error with a human-readable cause
// in the container logs, so persisted state never silently diverges from
// the last failure. Best-effort: the original failure is what surfaces.
func (a *App) recordDeployError(ctx context.Context, record domain.Deployment, cause string) {
	record.Status = domain.DeployError
	record.ContainerState = domain.ContainerError
	record.ContainerLogs = cause
	record.LastDeployment = time.Now().UTC()
	if err := a.store.UpsertDeployment(record); err != nil {
		util.LoggerFromContext(ctx).Error("failed to persist deployment error state",
			"owner_id", record.OwnerID, "cause", cause, "err", err)
	}
}
