package app

import (
	"context"
	"errors"
	"testing"

	"appforge/internal/ownerlock"
	"appforge/pkg/domain"
)

func TestHandlePromptFullCycle(t *testing.T) {
	a, _, objects, generator, rt := newTestApp(t)
	generator.reply = `{"files":[{"path":"index.html","content":"<h1>hello world</h1>"}],"description":"a hello world page"}`

	out, err := a.HandlePrompt(context.Background(), "u1", "build a hello world page", "react")
	if err != nil {
		t.Fatalf("handle prompt: %v", err)
	}
	if out.Description != "a hello world page" {
		t.Fatalf("unexpected description %q", out.Description)
	}
	if len(out.Files) != 1 || out.Files[0].Version != 1 {
		t.Fatalf("expected one version-1 artifact, got %+v", out.Files)
	}
	if out.Deployment.Status != domain.DeployDeployed {
		t.Fatalf("expected deployed, got %s", out.Deployment.Status)
	}
	if len(rt.runningContainers()) != 1 {
		t.Fatalf("expected one running container")
	}
	if data, err := objects.Get(context.Background(), "u1/index.html"); err != nil || string(data) != "<h1>hello world</h1>" {
		t.Fatalf("blob not persisted: %q %v", data, err)
	}
}

func TestHandlePromptGenerationFailureMarksDeploymentError(t *testing.T) {
	a, _, _, generator, rt := newTestApp(t)
	generator.reply = "not json at all"

	_, err := a.HandlePrompt(context.Background(), "u1", "build something", "")
	var gen *GenerationError
	if !errors.As(err, &gen) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	record, found, _ := a.DeploymentStatus("u1")
	if !found || record.Status != domain.DeployError {
		t.Fatalf("failed prompt should leave an error record, got found=%v %+v", found, record)
	}
	if len(rt.runningContainers()) != 0 {
		t.Fatalf("no container may exist after a failed generation")
	}
}

func TestHandlePromptReconcileFailureMarksDeploymentError(t *testing.T) {
	a, _, objects, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"path":"index.html","content":"x"}],"description":"d"}`
	objects.failOn = "u1/index.html"

	_, err := a.HandlePrompt(context.Background(), "u1", "build something", "")
	var rec *ReconcileError
	if !errors.As(err, &rec) {
		t.Fatalf("expected ReconcileError, got %v", err)
	}
	record, found, _ := a.DeploymentStatus("u1")
	if !found || record.Status != domain.DeployError {
		t.Fatalf("failed reconcile should leave an error record, got found=%v %+v", found, record)
	}
}

func TestUpdateFilesAppliesBatchWithoutProvisioning(t *testing.T) {
	a, _, _, generator, rt := newTestApp(t)
	ctx := context.Background()
	mustReconcile(t, a, "u1", domain.FileOperation{Action: domain.ActionAdd, Path: "index.html", Content: "v1"})

	generator.reply = `{"files":[{"action":"update","path":"index.html","content":"v2"}],"description":"bumped"}`
	out, err := a.UpdateFiles(ctx, "u1", "bump it")
	if err != nil {
		t.Fatalf("update files: %v", err)
	}
	if len(out.Updated) != 1 || out.Updated[0].Version != 2 {
		t.Fatalf("expected version 2, got %+v", out.Updated)
	}
	if len(out.Updated[0].PreviousVersions) != 1 || out.Updated[0].PreviousVersions[0].Version != 1 {
		t.Fatalf("history not recorded: %+v", out.Updated[0].PreviousVersions)
	}
	if len(rt.runningContainers()) != 0 {
		t.Fatalf("update must not provision a container")
	}
}

func TestSaveFilesReturnsAccessRecords(t *testing.T) {
	a, _, _, _, _ := newTestApp(t)

	records, err := a.SaveFiles(context.Background(), "u1", []domain.FileOperation{
		{Action: domain.ActionAdd, Path: "a.js", Content: "x"},
		{Action: domain.ActionAdd, Path: "b.css", Content: "y"},
	})
	if err != nil {
		t.Fatalf("save files: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.Version != 1 {
			t.Fatalf("expected version 1, got %+v", r)
		}
		if r.URL != "https://objects.test/u1/"+r.Path {
			t.Fatalf("unexpected url %q", r.URL)
		}
	}
}

func TestSaveFilesRejectsTraversalPath(t *testing.T) {
	a, _, _, _, _ := newTestApp(t)

	_, err := a.SaveFiles(context.Background(), "u1", []domain.FileOperation{
		{Action: domain.ActionAdd, Path: "../escape.html", Content: "x"},
	})
	var rec *ReconcileError
	if !errors.As(err, &rec) {
		t.Fatalf("expected ReconcileError, got %v", err)
	}
	var invalid *InvalidPathError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPathError cause, got %v", err)
	}
}

func TestDeployWithFilesReconcilesThenProvisions(t *testing.T) {
	a, _, _, _, rt := newTestApp(t)

	record, err := a.Deploy(context.Background(), "u1", "", []domain.FileOperation{
		{Action: domain.ActionAdd, Path: "index.html", Content: "<html></html>"},
	})
	if err != nil {
		t.Fatalf("deploy with files: %v", err)
	}
	if record.Status != domain.DeployDeployed {
		t.Fatalf("expected deployed, got %s", record.Status)
	}
	if rt.copied[record.ContainerID]["index.html"] != "<html></html>" {
		t.Fatalf("shipped files should reach the container")
	}
	artifacts, _ := a.ListArtifacts("u1")
	if len(artifacts) != 1 || artifacts[0].Version != 1 {
		t.Fatalf("shipped files should be persisted: %+v", artifacts)
	}
}

func TestBusyOwnerFailsFast(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[],"description":"d"}`
	a.locks = busyLocker{}

	if _, err := a.HandlePrompt(context.Background(), "u1", "p", ""); !errors.Is(err, ownerlock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := a.UpdateFiles(context.Background(), "u1", "p"); !errors.Is(err, ownerlock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := a.SaveFiles(context.Background(), "u1", nil); !errors.Is(err, ownerlock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := a.Deploy(context.Background(), "u1", "", nil); !errors.Is(err, ownerlock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, ownerlock.ErrBusy
}
