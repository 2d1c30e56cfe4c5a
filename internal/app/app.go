package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appforge/internal/ownerlock"
	"appforge/pkg/ai"
	"appforge/pkg/domain"
	"appforge/pkg/runtime"
	"appforge/pkg/storage"
	"appforge/pkg/store"
)

// Config wires required collaborators and policy for the core application.
type Config struct {
	Store     store.Store
	Objects   storage.ObjectStore
	Generator ai.TextGenerator
	Runtime   runtime.ContainerRuntime
	Locks     ownerlock.Locker

	PreviewBaseURL  string
	PreviewHostPort int
	DefaultImage    string
	FrameworkImages map[string]string

	GenerationTimeout time.Duration
	PresignExpiry     time.Duration
}

// App is the core application service: orchestration, reconciliation,
// provisioning, and status tracking over external collaborators.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	generator ai.TextGenerator
	runtime   runtime.ContainerRuntime
	locks     ownerlock.Locker

	previewBaseURL  string
	previewHostPort int
	defaultImage    string
	frameworkImages map[string]string

	generationTimeout time.Duration
	presignExpiry     time.Duration
}

// New validates collaborators and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("text generator required")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("container runtime required")
	}
	if cfg.Locks == nil {
		return nil, errors.New("owner locker required")
	}
	if cfg.PreviewHostPort <= 0 {
		return nil, errors.New("preview host port required")
	}
	if cfg.DefaultImage == "" {
		cfg.DefaultImage = "node:18"
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 5 * time.Minute
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &App{
		store:             cfg.Store,
		objects:           cfg.Objects,
		generator:         cfg.Generator,
		runtime:           cfg.Runtime,
		locks:             cfg.Locks,
		previewBaseURL:    cfg.PreviewBaseURL,
		previewHostPort:   cfg.PreviewHostPort,
		defaultImage:      cfg.DefaultImage,
		frameworkImages:   cfg.FrameworkImages,
		generationTimeout: cfg.GenerationTimeout,
		presignExpiry:     cfg.PresignExpiry,
	}, nil
}

// PromptOutcome is the result of one full prompt cycle.
type PromptOutcome struct {
	Description string
	Files       []domain.Artifact
	Deleted     []string
	Deployment  domain.Deployment
	Warning     string
}

// FileRecord describes one saved file in a direct-upload response.
type FileRecord struct {
	Path    string `json:"path"`
	URL     string `json:"url"`
	Version int    `json:"version"`
}

// HandlePrompt runs the full fresh-generation cycle under the owner's
// lock: generate, reconcile, provision. Any failure records an error
// deployment status before surfacing.
func (a *App) HandlePrompt(ctx context.Context, ownerID, prompt, framework string) (PromptOutcome, error) {
	var out PromptOutcome
	err := a.withOwnerLock(ctx, ownerID, func() error {
		gen, err := a.Generate(ctx, ownerID, prompt, framework)
		out.Warning = gen.Warning
		if err != nil {
			a.failDeployment(ctx, ownerID, framework, fmt.Sprintf("generation failed: %v", err))
			return err
		}
		out.Description = gen.Description

		applied, err := a.Reconcile(ctx, ownerID, gen.Operations)
		out.Files = applied.Updated
		out.Deleted = applied.Deleted
		if err != nil {
			a.failDeployment(ctx, ownerID, framework, fmt.Sprintf("file reconciliation failed: %v", err))
			return err
		}

		record, err := a.Provision(ctx, ownerID, framework)
		if err != nil {
			return err
		}
		out.Deployment = record
		return nil
	})
	return out, err
}

// UpdateOutcome is the result of one incremental-update cycle.
type UpdateOutcome struct {
	Description string
	Updated     []domain.Artifact
	Deleted     []string
	Warning     string
}

// UpdateFiles runs the incremental cycle under the owner's lock: send the
// current artifact set plus the instruction, validate the returned batch,
// reconcile it. The preview container is not re-provisioned; callers
// redeploy explicitly.
func (a *App) UpdateFiles(ctx context.Context, ownerID, prompt string) (UpdateOutcome, error) {
	var out UpdateOutcome
	err := a.withOwnerLock(ctx, ownerID, func() error {
		gen, err := a.Update(ctx, ownerID, prompt)
		out.Warning = gen.Warning
		if err != nil {
			a.failDeployment(ctx, ownerID, "", fmt.Sprintf("generation failed: %v", err))
			return err
		}
		out.Description = gen.Description

		applied, err := a.Reconcile(ctx, ownerID, gen.Operations)
		out.Updated = applied.Updated
		out.Deleted = applied.Deleted
		if err != nil {
			a.failDeployment(ctx, ownerID, "", fmt.Sprintf("file reconciliation failed: %v", err))
			return err
		}
		return nil
	})
	return out, err
}

// SaveFiles persists a client-supplied file batch directly (no model in
// the loop) and returns per-file access records.
func (a *App) SaveFiles(ctx context.Context, ownerID string, batch []domain.FileOperation) ([]FileRecord, error) {
	var records []FileRecord
	err := a.withOwnerLock(ctx, ownerID, func() error {
		applied, err := a.Reconcile(ctx, ownerID, batch)
		if err != nil {
			return err
		}
		records = make([]FileRecord, 0, len(applied.Updated))
		for _, artifact := range applied.Updated {
			url, err := a.objects.PresignGet(ctx, blobKey(ownerID, artifact.Path), a.presignExpiry)
			if err != nil {
				return fmt.Errorf("presign %s: %w", artifact.Path, err)
			}
			records = append(records, FileRecord{
				Path:    artifact.Path,
				URL:     url,
				Version: artifact.Version,
			})
		}
		return nil
	})
	return records, err
}

// Deploy provisions the preview container under the owner's lock. A
// non-empty batch is reconciled into the artifact set first, so a client
// can ship files and deploy them in one call.
func (a *App) Deploy(ctx context.Context, ownerID, framework string, batch []domain.FileOperation) (domain.Deployment, error) {
	var record domain.Deployment
	err := a.withOwnerLock(ctx, ownerID, func() error {
		if len(batch) > 0 {
			if _, err := a.Reconcile(ctx, ownerID, batch); err != nil {
				a.failDeployment(ctx, ownerID, framework, fmt.Sprintf("file reconciliation failed: %v", err))
				return err
			}
		}
		var err error
		record, err = a.Provision(ctx, ownerID, framework)
		return err
	})
	return record, err
}

// TeardownContainer stops and removes the owner's preview container under
// the owner's lock.
func (a *App) TeardownContainer(ctx context.Context, ownerID string) (domain.Deployment, error) {
	var record domain.Deployment
	err := a.withOwnerLock(ctx, ownerID, func() error {
		var err error
		record, err = a.Teardown(ctx, ownerID)
		return err
	})
	return record, err
}

// ListArtifacts returns the owner's current live artifact set.
func (a *App) ListArtifacts(ownerID string) ([]domain.Artifact, error) {
	return a.store.ListArtifactsByOwner(ownerID)
}

// withOwnerLock serializes one reconcile-and-provision cycle per owner.
// Concurrent requests for the same owner fail fast with ownerlock.ErrBusy
// instead of queueing behind a potentially minutes-long cycle.
func (a *App) withOwnerLock(ctx context.Context, ownerID string, fn func() error) error {
	release, err := a.locks.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// failDeployment records an error status for the owner, creating the
// record when the failure happened before any deploy existed.
func (a *App) failDeployment(ctx context.Context, ownerID, framework, cause string) {
	record, found, err := a.store.GetDeploymentByOwner(ownerID)
	if err != nil || !found {
		record = domain.Deployment{
			ID:      newProjectID(),
			OwnerID: ownerID,
		}
	}
	if framework != "" {
		record.Framework = framework
	}
	a.recordDeployError(ctx, record, cause)
}
