package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"appforge/internal/util"
	"appforge/pkg/domain"
	"appforge/pkg/runtime"
)

const (
	containerAppDir = "/app"
	containerPort   = 3000
	logTailLines    = 100
)

// Provision runs one deploy cycle for the owner: mirror the current
// artifact set into a fresh container, start it, observe its logs, and
// persist the outcome. Exactly one container exists per project at a time;
// a prior container is torn down before the new one is created. Any
// failure moves the record to error with the cause recorded, then
// surfaces to the caller — there is no silent retry.
func (a *App) Provision(ctx context.Context, ownerID, framework string) (domain.Deployment, error) {
	log := util.LoggerFromContext(ctx)

	artifacts, err := a.store.ListArtifactsByOwner(ownerID)
	if err != nil {
		return domain.Deployment{}, &ProvisionError{Step: "load artifacts", Err: err}
	}
	if len(artifacts) == 0 {
		return domain.Deployment{}, &ProvisionError{Step: "load artifacts", Err: ErrNoArtifacts}
	}

	existing, found, err := a.store.GetDeploymentByOwner(ownerID)
	if err != nil {
		return domain.Deployment{}, &ProvisionError{Step: "load deployment record", Err: err}
	}
	record := existing
	if !found {
		record = domain.Deployment{
			ID:      newProjectID(),
			OwnerID: ownerID,
		}
	}
	record.Status = domain.DeployPending
	record.Framework = framework
	if err := a.store.UpsertDeployment(record); err != nil {
		return domain.Deployment{}, &ProvisionError{Step: "record pending", Err: err}
	}

	// Never run two containers for the same project.
	if record.ContainerID != "" {
		if err := a.teardownContainer(ctx, record.ContainerID); err != nil {
			a.recordDeployError(ctx, record, fmt.Sprintf("teardown of previous container failed: %v", err))
			return domain.Deployment{}, err
		}
		record.ContainerID = ""
		record.ContainerState = domain.ContainerNone
	}

	name := containerName(record.ID)
	log.Info("creating preview container", "owner_id", ownerID, "project_id", record.ID, "name", name)
	containerID, err := a.runtime.CreateContainer(ctx, runtime.ContainerConfig{
		Name:          name,
		Image:         a.imageFor(framework),
		Env:           []string{"PROJECT_ID=" + record.ID, "USER_ID=" + ownerID},
		ContainerPort: containerPort,
		HostPort:      a.previewHostPort,
	})
	if err != nil {
		a.recordDeployError(ctx, record, fmt.Sprintf("container create failed: %v", err))
		return domain.Deployment{}, &ProvisionError{Step: "create container", Err: err}
	}
	record.ContainerID = containerID
	record.ContainerState = domain.ContainerCreating
	if err := a.store.UpsertDeployment(record); err != nil {
		a.recordDeployError(ctx, record, fmt.Sprintf("record container id failed: %v", err))
		return domain.Deployment{}, &ProvisionError{Step: "record container id", Err: err}
	}

	// Mirror the artifact set at provisioning time, not the op stream.
	files := make(map[string]string, len(artifacts))
	for _, artifact := range artifacts {
		files[artifact.Path] = artifact.Content
	}
	if err := a.runtime.CopyToContainer(ctx, containerID, containerAppDir, files); err != nil {
		a.recordDeployError(ctx, record, fmt.Sprintf("project file copy failed: %v", err))
		return domain.Deployment{}, &ProvisionError{Step: "copy files", Err: err}
	}

	if err := a.runtime.StartContainer(ctx, containerID); err != nil {
		a.recordDeployError(ctx, record, fmt.Sprintf("container start failed: %v", err))
		return domain.Deployment{}, &ProvisionError{Step: "start container", Err: err}
	}
	record.ContainerState = domain.ContainerRunning

	// Observed regardless of outcome; a log fetch failure is not fatal once
	// the container is running.
	logs, err := a.runtime.ContainerLogs(ctx, containerID, logTailLines)
	if err != nil {
		log.Warn("container log fetch failed", "container_id", containerID, "err", err)
		logs = fmt.Sprintf("log fetch failed: %v", err)
	}

	record.Status = domain.DeployDeployed
	record.ProjectURL = a.previewBaseURL + "/container/" + record.ID
	record.ContainerLogs = logs
	record.LastDeployment = time.Now().UTC()
	if err := a.store.UpsertDeployment(record); err != nil {
		return domain.Deployment{}, &ProvisionError{Step: "record deployed", Err: err}
	}
	log.Info("preview deployed", "owner_id", ownerID, "project_id", record.ID, "container_id", containerID)
	return record, nil
}

// Teardown stops and removes the owner's preview container. Stop must
// succeed before removal is attempted; on a stop failure the container is
// left running and a TeardownError surfaces rather than an orphaned
// removal. Tearing down an owner with no container is a no-op.
func (a *App) Teardown(ctx context.Context, ownerID string) (domain.Deployment, error) {
	record, found, err := a.store.GetDeploymentByOwner(ownerID)
	if err != nil {
		return domain.Deployment{}, fmt.Errorf("load deployment record: %w", err)
	}
	if !found || record.ContainerID == "" {
		return record, nil
	}
	if err := a.teardownContainer(ctx, record.ContainerID); err != nil {
		return record, err
	}
	record.ContainerID = ""
	record.ContainerState = domain.ContainerStopped
	if err := a.store.UpsertDeployment(record); err != nil {
		return record, fmt.Errorf("record teardown: %w", err)
	}
	return record, nil
}

func (a *App) teardownContainer(ctx context.Context, containerID string) error {
	if err := a.runtime.StopContainer(ctx, containerID); err != nil {
		return &TeardownError{ContainerID: containerID, Err: fmt.Errorf("stop: %w", err)}
	}
	if err := a.runtime.RemoveContainer(ctx, containerID); err != nil {
		return &TeardownError{ContainerID: containerID, Err: fmt.Errorf("remove: %w", err)}
	}
	return nil
}

// ContainerLogs returns the current log tail for the owner's container.
func (a *App) ContainerLogs(ctx context.Context, ownerID string) (string, error) {
	record, found, err := a.store.GetDeploymentByOwner(ownerID)
	if err != nil {
		return "", fmt.Errorf("load deployment record: %w", err)
	}
	if !found || record.ContainerID == "" {
		return "", fmt.Errorf("no container for owner %s", ownerID)
	}
	return a.runtime.ContainerLogs(ctx, record.ContainerID, logTailLines)
}

func (a *App) imageFor(framework string) string {
	if image, ok := a.frameworkImages[strings.ToLower(strings.TrimSpace(framework))]; ok {
		return image
	}
	// Unrecognized frameworks fall back to the default image; a deploy
	// never fails solely because the framework name is unknown.
	return a.defaultImage
}

func newProjectID() string {
	return uuid.NewString()
}

func containerName(projectID string) string {
	id := strings.ReplaceAll(projectID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "app-" + id
}
