package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"appforge/internal/util"
	"appforge/pkg/domain"
)

// GenerationResult is a validated operation batch produced by one
// orchestration cycle. Warning carries a non-fatal chat-logging failure.
type GenerationResult struct {
	Description string
	Operations  []domain.FileOperation
	Warning     string
}

// Generate runs a fresh-generation cycle: no existing file context is sent,
// and every returned file becomes an add operation. The reply must match
// the {files:[{path,content}], description} contract; anything else fails
// with GenerationError and no side effect on the artifact set.
func (a *App) Generate(ctx context.Context, ownerID, prompt, framework string) (GenerationResult, error) {
	var res GenerationResult
	res.Warning = a.logChat(ctx, ownerID, "user", prompt)

	ctx, cancel := context.WithTimeout(ctx, a.generationTimeout)
	defer cancel()

	raw, err := a.generator.GenerateText(ctx, freshSystemPrompt(framework), prompt)
	if err != nil {
		return res, &GenerationError{Err: err}
	}
	description, ops, err := parseFreshReply(raw)
	if err != nil {
		return res, &GenerationError{Err: err}
	}
	res.Description = description
	res.Operations = ops
	if w := a.logChat(ctx, ownerID, "assistant", description); res.Warning == "" {
		res.Warning = w
	}
	return res, nil
}

// Update runs an incremental-update cycle: the owner's complete current
// artifact set is serialized into the prompt and the model returns an
// operation batch with an action per file.
func (a *App) Update(ctx context.Context, ownerID, prompt string) (GenerationResult, error) {
	var res GenerationResult

	artifacts, err := a.store.ListArtifactsByOwner(ownerID)
	if err != nil {
		return res, &GenerationError{Err: fmt.Errorf("load current files: %w", err)}
	}
	res.Warning = a.logChat(ctx, ownerID, "user", prompt)

	ctx, cancel := context.WithTimeout(ctx, a.generationTimeout)
	defer cancel()

	raw, err := a.generator.GenerateText(ctx, updateSystemPrompt(), updateUserPrompt(artifacts, prompt))
	if err != nil {
		return res, &GenerationError{Err: err}
	}
	description, ops, err := parseUpdateReply(raw)
	if err != nil {
		return res, &GenerationError{Err: err}
	}
	res.Description = description
	res.Operations = ops
	if w := a.logChat(ctx, ownerID, "assistant", description); res.Warning == "" {
		res.Warning = w
	}
	return res, nil
}

// logChat appends one immutable chat history entry. Best-effort: a failure
// never aborts the main flow, but is reported back as a warning.
func (a *App) logChat(ctx context.Context, ownerID, role, content string) string {
	entry := domain.ChatEntry{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendChatEntry(entry); err != nil {
		util.LoggerFromContext(ctx).Warn("chat history write failed", "owner_id", ownerID, "role", role, "err", err)
		return fmt.Sprintf("chat history not recorded: %v", err)
	}
	return ""
}

// Reply shapes. Pointer fields distinguish absent from empty so that a
// reply missing a required field is rejected rather than coerced.

type modelReply struct {
	Files       *[]modelFile `json:"files"`
	Description *string      `json:"description"`
}

type modelFile struct {
	Action  *string `json:"action"`
	Path    *string `json:"path"`
	Content *string `json:"content"`
}

func parseFreshReply(raw string) (string, []domain.FileOperation, error) {
	reply, err := decodeReply(raw)
	if err != nil {
		return "", nil, err
	}
	ops := make([]domain.FileOperation, 0, len(*reply.Files))
	for i, f := range *reply.Files {
		if f.Path == nil || strings.TrimSpace(*f.Path) == "" {
			return "", nil, fmt.Errorf("reply file %d: missing path", i)
		}
		if f.Content == nil {
			return "", nil, fmt.Errorf("reply file %d (%s): missing content", i, *f.Path)
		}
		ops = append(ops, domain.FileOperation{
			Action:  domain.ActionAdd,
			Path:    *f.Path,
			Content: *f.Content,
		})
	}
	return *reply.Description, ops, nil
}

func parseUpdateReply(raw string) (string, []domain.FileOperation, error) {
	reply, err := decodeReply(raw)
	if err != nil {
		return "", nil, err
	}
	ops := make([]domain.FileOperation, 0, len(*reply.Files))
	for i, f := range *reply.Files {
		if f.Action == nil {
			return "", nil, fmt.Errorf("reply file %d: missing action", i)
		}
		action := domain.FileAction(strings.ToLower(strings.TrimSpace(*f.Action)))
		if !action.Valid() {
			return "", nil, fmt.Errorf("reply file %d: invalid action %q", i, *f.Action)
		}
		if f.Path == nil || strings.TrimSpace(*f.Path) == "" {
			return "", nil, fmt.Errorf("reply file %d: missing path", i)
		}
		op := domain.FileOperation{Action: action, Path: *f.Path}
		if action == domain.ActionDelete {
			// Content is ignored for deletes.
			ops = append(ops, op)
			continue
		}
		if f.Content == nil {
			return "", nil, fmt.Errorf("reply file %d (%s): missing content for %s", i, *f.Path, action)
		}
		op.Content = *f.Content
		ops = append(ops, op)
	}
	return *reply.Description, ops, nil
}

func decodeReply(raw string) (modelReply, error) {
	var reply modelReply
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &reply); err != nil {
		return reply, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if reply.Description == nil {
		return reply, fmt.Errorf("reply missing description")
	}
	if reply.Files == nil {
		return reply, fmt.Errorf("reply missing files")
	}
	return reply, nil
}

// stripCodeFence removes a surrounding markdown fence some models insist on
// wrapping JSON replies in.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
