package app

import (
	"errors"
	"fmt"
)

// ErrNoArtifacts indicates a deploy was requested before any project files
// exist for the owner.
var ErrNoArtifacts = errors.New("no project files to deploy")

// InvalidPathError rejects artifact paths that escape the owner namespace
// (parent-directory traversal, absolute paths, empty paths).
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q", e.Path)
}

// ReconcileError reports a failed batch application: the path that failed
// and how many operations were already committed. Committed operations are
// not rolled back.
type ReconcileError struct {
	Path      string
	Committed int
	Err       error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile failed at %q after %d committed operations: %v", e.Path, e.Committed, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// GenerationError reports a failed orchestration cycle: a collaborator
// error or timeout, malformed JSON, or a reply outside the contract shape.
// No artifact is mutated when it is returned.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProvisionError reports a failed container lifecycle step. The deployment
// record has already been moved to error with the cause recorded.
type ProvisionError struct {
	Step string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision failed at %s: %v", e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// TeardownError reports a failed stop or remove. When stop fails the
// container is left running and removal is not attempted.
type TeardownError struct {
	ContainerID string
	Err         error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of container %s failed: %v", e.ContainerID, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
