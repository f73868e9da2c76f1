package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"gamemaster/internal"
	"gamemaster/internal/logger"
)

// ErrNoAssistant matches errors about threads that are not linked to an assistant.
var ErrNoAssistant = errors.New("thread does not have an assistant")

type noAssistantError struct {
	threadID string
}

func (e *noAssistantError) Error() string {
	return fmt.Sprintf("thread %s does not have an assistant", e.threadID)
}

func (e *noAssistantError) Is(target error) bool {
	return target == ErrNoAssistant
}

// Role is one campaign: its own assistant plus the thread that holds the story.
type Role struct {
	Assistant openai.Assistant `json:"assistant"`
	Thread    openai.Thread    `json:"thread"`
}

type RoleOptions struct {
	AssistantName string   `json:"assistantName,omitempty"`
	RoleName      string   `json:"roleName,omitempty"`
	FileIDs       []string `json:"fileIds,omitempty"`
}

type RoleManager struct {
	api     AssistantsAPI
	persona Persona
}

func NewRoleManager(api AssistantsAPI, persona Persona) *RoleManager {
	return &RoleManager{api: api, persona: persona}
}

// CreateRole creates an assistant from the persona and a thread whose
// metadata points back at it.
func (m *RoleManager) CreateRole(ctx context.Context, opts RoleOptions) (Role, error) {
	req := m.persona.Request(opts.AssistantName)
	req.FileIDs = opts.FileIDs

	assistant, err := m.api.CreateAssistant(ctx, req)
	if err != nil {
		return Role{}, fmt.Errorf("failed to create assistant: %w", err)
	}

	roleName := opts.RoleName
	if roleName == "" {
		roleName = internal.DEFAULT_ROLE_NAME
	}

	thread, err := m.api.CreateThread(ctx, openai.ThreadRequest{
		Metadata: map[string]any{
			MetadataRoleName:    roleName,
			MetadataAssistantID: assistant.ID,
		},
	})
	if err != nil {
		// Don't leave an orphaned assistant behind
		if _, derr := m.api.DeleteAssistant(ctx, assistant.ID); derr != nil {
			logger.Warnf("Failed to delete assistant %s after thread creation failed: %v", assistant.ID, derr)
		}
		return Role{}, fmt.Errorf("failed to create thread: %w", err)
	}

	logger.Successf("Created role %q: thread %s, assistant %s", roleName, thread.ID, assistant.ID)
	return Role{Assistant: assistant, Thread: thread}, nil
}

// GetRole loads a role by its thread id.
func (m *RoleManager) GetRole(ctx context.Context, threadID string) (Role, error) {
	thread, err := m.api.RetrieveThread(ctx, threadID)
	if err != nil {
		return Role{}, err
	}

	assistantID, ok := assistantIDFromMetadata(thread.Metadata)
	if !ok {
		return Role{}, &noAssistantError{threadID: threadID}
	}

	assistant, err := m.api.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return Role{}, fmt.Errorf("thread %s: %w", threadID, err)
	}

	return Role{Assistant: assistant, Thread: thread}, nil
}

// UpdateRole renames the assistant and/or the role and replaces the
// assistant's files. Empty options keep the current values.
func (m *RoleManager) UpdateRole(ctx context.Context, threadID string, opts RoleOptions) (Role, error) {
	role, err := m.GetRole(ctx, threadID)
	if err != nil {
		return Role{}, err
	}

	if opts.AssistantName != "" || opts.FileIDs != nil {
		req := openai.AssistantRequest{
			Model:   role.Assistant.Model,
			Name:    role.Assistant.Name,
			FileIDs: role.Assistant.FileIDs,
		}
		if opts.AssistantName != "" {
			name := opts.AssistantName
			req.Name = &name
		}
		if opts.FileIDs != nil {
			req.FileIDs = opts.FileIDs
		}

		role.Assistant, err = m.api.ModifyAssistant(ctx, role.Assistant.ID, req)
		if err != nil {
			return Role{}, fmt.Errorf("failed to update assistant %s: %w", role.Assistant.ID, err)
		}
	}

	if opts.RoleName != "" {
		metadata := map[string]any{}
		for k, v := range role.Thread.Metadata {
			metadata[k] = v
		}
		metadata[MetadataRoleName] = opts.RoleName

		role.Thread, err = m.api.ModifyThread(ctx, threadID, openai.ModifyThreadRequest{Metadata: metadata})
		if err != nil {
			return Role{}, fmt.Errorf("failed to update thread %s: %w", threadID, err)
		}
	}

	return role, nil
}

// DeleteRole deletes the assistant and then the thread.
func (m *RoleManager) DeleteRole(ctx context.Context, threadID string) error {
	role, err := m.GetRole(ctx, threadID)
	if err != nil {
		return err
	}

	if _, err := m.api.DeleteAssistant(ctx, role.Assistant.ID); err != nil {
		return fmt.Errorf("failed to delete assistant %s: %w", role.Assistant.ID, err)
	}
	if _, err := m.api.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}

	logger.Infof("Deleted role on thread %s", threadID)
	return nil
}
