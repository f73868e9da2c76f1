package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"gamemaster/internal/logger"
)

var (
	// ErrRunTimeout is returned when a run is still not terminal after the
	// poll budget is spent.
	ErrRunTimeout = errors.New("run did not finish within the poll budget")
	// ErrRunNotCompleted matches every *RunError.
	ErrRunNotCompleted = errors.New("run did not complete")
	// ErrEmptyReply is returned when a completed run left no text message.
	ErrEmptyReply = errors.New("assistant reply has no text content")
)

// RunStatusIncomplete is the v2 terminal status for runs cut short by token limits.
const RunStatusIncomplete openai.RunStatus = "incomplete"

const cancelTimeout = 10 * time.Second

// RunError reports a run that reached a terminal status other than completed.
type RunError struct {
	ThreadID string
	RunID    string
	Status   openai.RunStatus
	Code     string
	Message  string
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
	if e.Message != "" {
		msg += fmt.Sprintf(": %s (%s)", e.Message, e.Code)
	}
	return msg
}

func (e *RunError) Is(target error) bool {
	return target == ErrRunNotCompleted
}

type DriverOptions struct {
	AssistantID  string
	PollInterval time.Duration
	MaxPolls     int
}

// Driver takes a user message through one assistant run: thread, message,
// run, then polling until the run is terminal, answering tool calls on the way.
type Driver struct {
	api          RunAPI
	dispatcher   Dispatcher
	assistantID  string
	pollInterval time.Duration
	maxPolls     int
}

func NewDriver(api RunAPI, dispatcher Dispatcher, opts DriverOptions) *Driver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 120
	}
	return &Driver{
		api:          api,
		dispatcher:   dispatcher,
		assistantID:  opts.AssistantID,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
	}
}

func (d *Driver) AssistantID() string {
	return d.assistantID
}

// Ask starts a new conversation with msg and returns the assistant's reply.
func (d *Driver) Ask(ctx context.Context, msg string) (Reply, error) {
	thread, err := d.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create thread: %w", err)
	}
	logger.AIDebugf("Created thread %s", thread.ID)

	return d.send(ctx, thread.ID, d.assistantID, msg)
}

// Continue adds msg to an existing thread and runs it. The assistant linked
// in the thread metadata wins over the configured one.
func (d *Driver) Continue(ctx context.Context, threadID, msg string) (Reply, error) {
	thread, err := d.api.RetrieveThread(ctx, threadID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to retrieve thread %s: %w", threadID, err)
	}

	assistantID := d.assistantID
	if id, ok := assistantIDFromMetadata(thread.Metadata); ok {
		assistantID = id
	}

	return d.send(ctx, threadID, assistantID, msg)
}

func (d *Driver) send(ctx context.Context, threadID, assistantID, msg string) (Reply, error) {
	if assistantID == "" {
		return Reply{}, fmt.Errorf("thread %s: no assistant to run", threadID)
	}

	if _, err := d.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: msg,
	}); err != nil {
		return Reply{}, fmt.Errorf("failed to add message to thread %s: %w", threadID, err)
	}

	run, err := d.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Reply{}, fmt.Errorf("failed to start run on thread %s: %w", threadID, err)
	}
	logger.AIDebugf("Started run %s on thread %s with assistant %s", run.ID, threadID, assistantID)

	reply := Reply{ThreadID: threadID, RunID: run.ID}
	if _, err := d.Wait(ctx, threadID, run.ID); err != nil {
		return reply, err
	}

	reply.Message, err = d.latestReply(ctx, threadID)
	return reply, err
}

// Wait polls the run until it is terminal. requires_action batches are
// handed to the dispatcher and their outputs submitted in one call.
// Running out of polls, a cancelled ctx or a failed dispatch cancel the run.
func (d *Driver) Wait(ctx context.Context, threadID, runID string) (openai.Run, error) {
	answered := map[string]bool{}

	for poll := 1; poll <= d.maxPolls; poll++ {
		run, err := d.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			d.cancel(ctx, threadID, runID)
			if ctx.Err() != nil {
				return run, ctx.Err()
			}
			return run, fmt.Errorf("failed to retrieve run %s: %w", runID, err)
		}
		logger.AIDebugf("Run %s poll %d: %s", runID, poll, run.Status)

		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:

		case openai.RunStatusRequiresAction:
			if err := d.answer(ctx, run, answered); err != nil {
				d.cancel(ctx, threadID, runID)
				return run, err
			}

		case openai.RunStatusCompleted:
			return run, nil

		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, RunStatusIncomplete:
			return run, newRunError(run, threadID)

		default:
			return run, fmt.Errorf("run %s: unexpected status %q", runID, run.Status)
		}

		if poll == d.maxPolls {
			break
		}

		timer := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.cancel(ctx, threadID, runID)
			return run, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warnf("Run %s still not terminal after %d polls, cancelling", runID, d.maxPolls)
	d.cancel(ctx, threadID, runID)
	return openai.Run{ID: runID, ThreadID: threadID}, ErrRunTimeout
}

// answer submits outputs for the pending tool calls. A batch whose calls were
// all answered already is the vendor not having moved on yet, so it is skipped.
func (d *Driver) answer(ctx context.Context, run openai.Run, answered map[string]bool) error {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return fmt.Errorf("run %s requires action but lists no tool calls", run.ID)
	}
	if run.RequiredAction.Type != "" && run.RequiredAction.Type != openai.RequiredActionTypeSubmitToolOutputs {
		return fmt.Errorf("run %s: unsupported required action %q", run.ID, run.RequiredAction.Type)
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	pending := false
	for _, call := range calls {
		if !answered[call.ID] {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	logger.AIDebugf("Run %s requires %d tool call(s)", run.ID, len(calls))
	outputs, err := d.dispatcher.Dispatch(ctx, calls)
	if err != nil {
		return fmt.Errorf("run %s: tool dispatch failed: %w", run.ID, err)
	}

	if _, err := d.api.SubmitToolOutputs(ctx, run.ThreadID, run.ID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	}); err != nil {
		return fmt.Errorf("run %s: failed to submit tool outputs: %w", run.ID, err)
	}

	for _, call := range calls {
		answered[call.ID] = true
	}
	return nil
}

// cancel is best effort and must work even when ctx is already done.
func (d *Driver) cancel(ctx context.Context, threadID, runID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if _, err := d.api.CancelRun(cctx, threadID, runID); err != nil {
		logger.Warnf("Failed to cancel run %s: %v", runID, err)
		return
	}
	logger.Infof("Cancelled run %s on thread %s", runID, threadID)
}

func (d *Driver) latestReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := d.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list messages of thread %s: %w", threadID, err)
	}
	if len(list.Messages) == 0 {
		return "", ErrEmptyReply
	}

	text := messageText(list.Messages[0])
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Messages returns up to limit messages of a thread, oldest first.
func (d *Driver) Messages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error) {
	order := "asc"
	var limitPtr *int
	if limit > 0 {
		limitPtr = &limit
	}

	list, err := d.api.ListMessage(ctx, threadID, limitPtr, &order, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	msgs := make([]ThreadMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		msgs = append(msgs, ThreadMessage{ID: m.ID, Role: m.Role, Content: messageText(m)})
	}
	return msgs, nil
}

func messageText(m openai.Message) string {
	var parts []string
	for _, c := range m.Content {
		if c.Text != nil && c.Text.Value != "" {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func newRunError(run openai.Run, threadID string) *RunError {
	e := &RunError{ThreadID: threadID, RunID: run.ID, Status: run.Status}
	if run.LastError != nil {
		e.Code = string(run.LastError.Code)
		e.Message = run.LastError.Message
	}
	return e
}

func assistantIDFromMetadata(md map[string]any) (string, bool) {
	id, ok := md[MetadataAssistantID].(string)
	return id, ok && id != ""
}
