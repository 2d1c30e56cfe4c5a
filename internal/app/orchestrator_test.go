package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"appforge/pkg/domain"
	"appforge/pkg/store"
)

func TestGenerateParsesFreshReply(t *testing.T) {
	a, memStore, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"path":"index.html","content":"<html></html>"},{"path":"style.css","content":"body{}"}],"description":"a hello world page"}`

	res, err := a.Generate(context.Background(), "u1", "create a hello-world page", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Description != "a hello world page" {
		t.Fatalf("unexpected description %q", res.Description)
	}
	if len(res.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(res.Operations))
	}
	for _, op := range res.Operations {
		if op.Action != domain.ActionAdd {
			t.Fatalf("fresh generation must produce adds, got %s", op.Action)
		}
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning %q", res.Warning)
	}

	// Prompt and description are both logged to chat history.
	entries, err := memStore.ListChatEntries("u1", 0)
	if err != nil {
		t.Fatalf("list chat: %v", err)
	}
	if len(entries) != 2 || entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Fatalf("unexpected chat history %+v", entries)
	}
}

func TestGenerateFrameworkSpecializesSystemPrompt(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[],"description":"ok"}`

	prompts := make(map[string]string)
	for _, fw := range []string{"react", "vue", "svelte", ""} {
		if _, err := a.Generate(context.Background(), "u1", "an app", fw); err != nil {
			t.Fatalf("generate %q: %v", fw, err)
		}
		prompts[fw] = generator.systemPrompt
	}
	if !strings.Contains(prompts["react"], "React") || !strings.Contains(prompts["vue"], "Vue") || !strings.Contains(prompts["svelte"], "Svelte") {
		t.Fatalf("framework prompts should be specialized")
	}
	seen := make(map[string]bool)
	for _, p := range prompts {
		seen[p] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct system prompts, got %d", len(seen))
	}
}

func TestGenerateRejectsUnparsableReply(t *testing.T) {
	a, memStore, _, generator, _ := newTestApp(t)
	generator.reply = "Sure! Here is your website: <html>..."

	_, err := a.Generate(context.Background(), "u1", "a page", "")
	var gen *GenerationError
	if !errors.As(err, &gen) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if artifacts, _ := memStore.ListArtifactsByOwner("u1"); len(artifacts) != 0 {
		t.Fatalf("no artifact may be mutated on a failed generation")
	}
}

func TestGenerateRejectsMissingFields(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	cases := []string{
		`{"files":[{"path":"a.js","content":"x"}]}`,             // no description
		`{"description":"d"}`,                                   // no files
		`{"files":[{"content":"x"}],"description":"d"}`,         // file missing path
		`{"files":[{"path":"a.js"}],"description":"d"}`,         // file missing content
		`{"files":[{"path":"  ","content":"x"}],"description":"d"}`, // blank path
	}
	for _, reply := range cases {
		generator.reply = reply
		_, err := a.Generate(context.Background(), "u1", "a page", "")
		var gen *GenerationError
		if !errors.As(err, &gen) {
			t.Fatalf("reply %s: expected GenerationError, got %v", reply, err)
		}
	}
}

func TestGenerateStripsCodeFence(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = "```json\n{\"files\":[{\"path\":\"a.js\",\"content\":\"x\"}],\"description\":\"ok\"}\n```"

	res, err := a.Generate(context.Background(), "u1", "a page", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Operations) != 1 || res.Operations[0].Path != "a.js" {
		t.Fatalf("unexpected operations %+v", res.Operations)
	}
}

func TestGenerateSurfacesCollaboratorError(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.err = errors.New("upstream timeout")

	_, err := a.Generate(context.Background(), "u1", "a page", "")
	var gen *GenerationError
	if !errors.As(err, &gen) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream timeout") {
		t.Fatalf("cause should be preserved, got %v", err)
	}
}

func TestUpdateSendsCurrentFilesAndParsesActions(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	ctx := context.Background()
	mustReconcile(t, a, "u1", domain.FileOperation{Action: domain.ActionAdd, Path: "index.html", Content: "<html>v1</html>"})

	generator.reply = `{"files":[{"action":"update","path":"index.html","content":"<html>v2</html>"},{"action":"delete","path":"old.js"}],"description":"updated the page"}`
	res, err := a.Update(ctx, "u1", "make it v2")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(res.Operations))
	}
	if res.Operations[0].Action != domain.ActionUpdate || res.Operations[1].Action != domain.ActionDelete {
		t.Fatalf("unexpected actions %+v", res.Operations)
	}

	// The combined prompt carries the current artifact content.
	if !strings.Contains(generator.userPrompt, "File: index.html") || !strings.Contains(generator.userPrompt, "<html>v1</html>") {
		t.Fatalf("existing files should be serialized into the prompt")
	}
	if !strings.Contains(generator.userPrompt, "make it v2") {
		t.Fatalf("user instruction should be part of the prompt")
	}
}

func TestUpdateRejectsInvalidAction(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"action":"rename","path":"a.js","content":"x"}],"description":"d"}`

	_, err := a.Update(context.Background(), "u1", "do something")
	var gen *GenerationError
	if !errors.As(err, &gen) {
		t.Fatalf("expected GenerationError for invalid action, got %v", err)
	}
}

func TestUpdateRequiresContentForAddAndUpdate(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"action":"update","path":"a.js"}],"description":"d"}`

	_, err := a.Update(context.Background(), "u1", "do something")
	var gen *GenerationError
	if !errors.As(err, &gen) {
		t.Fatalf("expected GenerationError for missing content, got %v", err)
	}
}

func TestUpdateDeleteIgnoresContent(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"action":"delete","path":"a.js","content":"stale"}],"description":"d"}`

	res, err := a.Update(context.Background(), "u1", "remove it")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Operations[0].Content != "" {
		t.Fatalf("delete content must be dropped, got %q", res.Operations[0].Content)
	}
}

func TestChatLoggingFailureIsWarningNotError(t *testing.T) {
	a, _, _, generator, _ := newTestApp(t)
	generator.reply = `{"files":[{"path":"a.js","content":"x"}],"description":"ok"}`
	a.store = failingChatStore{a.store}

	res, err := a.Generate(context.Background(), "u1", "a page", "")
	if err != nil {
		t.Fatalf("chat log failure must not fail generation: %v", err)
	}
	if res.Warning == "" {
		t.Fatalf("expected a warning for the failed chat write")
	}
}

// failingChatStore wraps a Store and fails chat appends.
type failingChatStore struct {
	store.Store
}

func (f failingChatStore) AppendChatEntry(domain.ChatEntry) error {
	return errors.New("chat table unavailable")
}
