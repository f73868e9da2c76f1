package ai

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// RunAPI is the part of the vendor Assistants API the run driver needs.
// *openai.Client satisfies it.
type RunAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	CancelRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
}

// AssistantsAPI adds assistant and thread management on top of RunAPI.
type AssistantsAPI interface {
	RunAPI

	CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	ModifyAssistant(ctx context.Context, assistantID string, request openai.AssistantRequest) (openai.Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) (openai.AssistantDeleteResponse, error)
	ListAssistants(ctx context.Context, limit *int, order *string, after *string, before *string) (openai.AssistantsList, error)

	ModifyThread(ctx context.Context, threadID string, request openai.ModifyThreadRequest) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (openai.ThreadDeleteResponse, error)
}

// Dispatcher answers the tool calls of a run waiting in requires_action.
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []openai.ToolCall) ([]openai.ToolOutput, error)
}

var _ AssistantsAPI = (*openai.Client)(nil)

// Reply is the outcome of one completed run.
type Reply struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
	Message  string `json:"message"`
}

// ThreadMessage is a flattened text message of a thread.
type ThreadMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Thread metadata keys linking a thread to its role.
const (
	MetadataAssistantID = "assistantId"
	MetadataRoleName    = "roleName"
)
