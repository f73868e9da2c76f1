package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(api *fakeAPI, d Dispatcher, maxPolls int) *Driver {
	return NewDriver(api, d, DriverOptions{
		AssistantID:  "asst_default",
		PollInterval: time.Millisecond,
		MaxPolls:     maxPolls,
	})
}

func toolRun(ids ...string) openai.Run {
	calls := make([]openai.ToolCall, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, openai.ToolCall{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "roll-dice", Arguments: `{"d":6,"n":1}`},
		})
	}
	return openai.Run{
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			Type:              openai.RequiredActionTypeSubmitToolOutputs,
			SubmitToolOutputs: &openai.SubmitToolOutputs{ToolCalls: calls},
		},
	}
}

func TestAskReturnsLatestMessage(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{
		{Status: openai.RunStatusQueued},
		{Status: openai.RunStatusInProgress},
		{Status: openai.RunStatusCompleted},
	}
	api.messages = []openai.Message{
		textMessage("msg_2", "assistant", "You wake up in a tavern."),
		textMessage("msg_1", "user", "Start the game"),
	}

	reply, err := newTestDriver(api, &fakeDispatcher{}, 10).Ask(context.Background(), "Start the game")
	require.NoError(t, err)

	assert.Equal(t, "You wake up in a tavern.", reply.Message)
	assert.Equal(t, "run_1", reply.RunID)
	assert.NotEmpty(t, reply.ThreadID)
	assert.Equal(t, 3, api.runPolls)

	require.Len(t, api.posted, 1)
	assert.Equal(t, "Start the game", api.posted[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, api.posted[0].Role)
	require.Len(t, api.created, 1)
	assert.Equal(t, "asst_default", api.created[0].AssistantID)
	assert.Empty(t, api.cancelled)
}

func TestAskJoinsTextBlocks(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusCompleted}}
	api.messages = []openai.Message{{
		ID:   "msg_1",
		Role: "assistant",
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: "first"}},
			{Type: "image_file"},
			{Type: "text", Text: &openai.MessageText{Value: "second"}},
		},
	}}

	reply, err := newTestDriver(api, &fakeDispatcher{}, 5).Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", reply.Message)
}

func TestAskEmptyReply(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusCompleted}}

	_, err := newTestDriver(api, &fakeDispatcher{}, 5).Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestWaitSubmitsToolOutputs(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{
		{Status: openai.RunStatusInProgress},
		toolRun("call_a", "call_b"),
		{Status: openai.RunStatusInProgress},
		{Status: openai.RunStatusCompleted},
	}
	api.messages = []openai.Message{textMessage("msg_9", "assistant", "You rolled a 4.")}
	dispatcher := &fakeDispatcher{}

	reply, err := newTestDriver(api, dispatcher, 10).Ask(context.Background(), "I attack the goblin")
	require.NoError(t, err)
	assert.Equal(t, "You rolled a 4.", reply.Message)

	require.Len(t, dispatcher.calls, 1)
	assert.Len(t, dispatcher.calls[0], 2)

	require.Len(t, api.submitted, 1)
	outputs := api.submitted[0]
	require.Len(t, outputs, 2)
	assert.Equal(t, "call_a", outputs[0].ToolCallID)
	assert.Equal(t, "call_b", outputs[1].ToolCallID)
}

func TestWaitSkipsAnsweredBatch(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{
		toolRun("call_a"),
		toolRun("call_a"),
		{Status: openai.RunStatusCompleted},
	}
	dispatcher := &fakeDispatcher{}

	_, err := newTestDriver(api, dispatcher, 10).Wait(context.Background(), "thread_x", "run_x")
	require.NoError(t, err)

	assert.Len(t, dispatcher.calls, 1)
	assert.Len(t, api.submitted, 1)
}

func TestWaitDispatchFailureCancelsRun(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{toolRun("call_a")}
	dispatchErr := errors.New("function nope not found")

	_, err := newTestDriver(api, &fakeDispatcher{err: dispatchErr}, 10).Wait(context.Background(), "thread_x", "run_x")
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatchErr)

	assert.Empty(t, api.submitted)
	assert.Equal(t, []string{"run_x"}, api.cancelled)
}

func TestWaitRequiresActionWithoutCalls(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusRequiresAction}}

	_, err := newTestDriver(api, &fakeDispatcher{}, 10).Wait(context.Background(), "thread_x", "run_x")
	require.Error(t, err)
	assert.Equal(t, []string{"run_x"}, api.cancelled)
}

func TestWaitTerminalFailures(t *testing.T) {
	tests := []struct {
		name   string
		status openai.RunStatus
	}{
		{"failed", openai.RunStatusFailed},
		{"cancelled", openai.RunStatusCancelled},
		{"expired", openai.RunStatusExpired},
		{"incomplete", RunStatusIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.runs = []openai.Run{
				{Status: openai.RunStatusInProgress},
				{
					Status:    tt.status,
					LastError: &openai.RunLastError{Code: "server_error", Message: "boom"},
				},
			}

			_, err := newTestDriver(api, &fakeDispatcher{}, 10).Wait(context.Background(), "thread_x", "run_x")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRunNotCompleted)

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tt.status, runErr.Status)
			assert.Equal(t, "run_x", runErr.RunID)
			assert.Equal(t, "thread_x", runErr.ThreadID)
			assert.Equal(t, "boom", runErr.Message)
			assert.Equal(t, "server_error", runErr.Code)
			assert.Empty(t, api.cancelled)
		})
	}
}

func TestWaitTimeoutCancelsRun(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusInProgress}}

	_, err := newTestDriver(api, &fakeDispatcher{}, 3).Wait(context.Background(), "thread_x", "run_x")
	assert.ErrorIs(t, err, ErrRunTimeout)
	assert.Equal(t, 3, api.runPolls)
	assert.Equal(t, []string{"run_x"}, api.cancelled)
}

func TestWaitContextCancelled(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusInProgress}}

	d := NewDriver(api, &fakeDispatcher{}, DriverOptions{
		AssistantID:  "asst_default",
		PollInterval: time.Hour,
		MaxPolls:     5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Wait(ctx, "thread_x", "run_x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"run_x"}, api.cancelled)
}

func TestWaitRetrieveErrorCancelsRun(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusInProgress}}
	api.retrieveRunErr = errors.New("connection reset")

	_, err := newTestDriver(api, &fakeDispatcher{}, 5).Wait(context.Background(), "thread_x", "run_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"run_x"}, api.cancelled)
}

func TestWaitUnknownStatus(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: "dreaming"}}

	_, err := newTestDriver(api, &fakeDispatcher{}, 5).Wait(context.Background(), "thread_x", "run_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dreaming")
}

func TestContinueUsesThreadAssistant(t *testing.T) {
	api := newFakeAPI()
	api.threads["thread_role"] = openai.Thread{
		ID:       "thread_role",
		Metadata: map[string]any{MetadataAssistantID: "asst_role", MetadataRoleName: "Dungeon"},
	}
	api.runs = []openai.Run{{Status: openai.RunStatusCompleted}}
	api.messages = []openai.Message{textMessage("msg_1", "assistant", "Welcome back.")}

	reply, err := newTestDriver(api, &fakeDispatcher{}, 5).Continue(context.Background(), "thread_role", "Where was I?")
	require.NoError(t, err)

	assert.Equal(t, "thread_role", reply.ThreadID)
	assert.Equal(t, "Welcome back.", reply.Message)
	require.Len(t, api.created, 1)
	assert.Equal(t, "asst_role", api.created[0].AssistantID)
}

func TestContinueFallsBackToConfiguredAssistant(t *testing.T) {
	api := newFakeAPI()
	api.threads["thread_plain"] = openai.Thread{ID: "thread_plain"}
	api.runs = []openai.Run{{Status: openai.RunStatusCompleted}}
	api.messages = []openai.Message{textMessage("msg_1", "assistant", "Hello.")}

	_, err := newTestDriver(api, &fakeDispatcher{}, 5).Continue(context.Background(), "thread_plain", "hi")
	require.NoError(t, err)
	require.Len(t, api.created, 1)
	assert.Equal(t, "asst_default", api.created[0].AssistantID)
}

func TestContinueUnknownThread(t *testing.T) {
	api := newFakeAPI()

	_, err := newTestDriver(api, &fakeDispatcher{}, 5).Continue(context.Background(), "thread_missing", "hi")
	assert.ErrorIs(t, err, errNotFound)
	assert.Empty(t, api.posted)
}

func TestSendWithoutAssistant(t *testing.T) {
	api := newFakeAPI()
	d := NewDriver(api, &fakeDispatcher{}, DriverOptions{PollInterval: time.Millisecond})

	_, err := d.Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, api.posted)
}

func TestMessagesOldestFirst(t *testing.T) {
	api := newFakeAPI()
	api.messages = []openai.Message{
		textMessage("msg_1", "user", "hello"),
		textMessage("msg_2", "assistant", "greetings"),
	}

	msgs, err := newTestDriver(api, &fakeDispatcher{}, 5).Messages(context.Background(), "thread_x", 0)
	require.NoError(t, err)
	assert.Equal(t, []ThreadMessage{
		{ID: "msg_1", Role: "user", Content: "hello"},
		{ID: "msg_2", Role: "assistant", Content: "greetings"},
	}, msgs)
}

func TestRunErrorMessage(t *testing.T) {
	err := &RunError{RunID: "run_1", Status: openai.RunStatusExpired}
	assert.Equal(t, "run run_1 ended with status expired", err.Error())

	err.Message, err.Code = "rate limited", "rate_limit_exceeded"
	assert.Equal(t, "run run_1 ended with status expired: rate limited (rate_limit_exceeded)", err.Error())
}
