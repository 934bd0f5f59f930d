package chat

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/bridge"
	"github.com/toolbridge/toolbridge/pkg/errs"
)

// scriptedLLM replays a fixed sequence of assistant replies and records every
// request it receives.
type scriptedLLM struct {
	replies  []openai.ChatCompletionMessage
	err      error
	requests []openai.ChatCompletionRequest
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: reply}},
	}, nil
}

type fakeTransport struct {
	tools    []bridge.Tool
	listErr  error
	callErr  error
	result   string
	invoked  []string
	lastArgs map[string]any
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]bridge.Tool, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	f.invoked = append(f.invoked, name)
	f.lastArgs = arguments
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.result, nil
}

func petTools() []bridge.Tool {
	return []bridge.Tool{{
		Name:        "list_pets",
		Description: "List all pets",
		InputSchema: map[string]any{"type": "object"},
	}}
}

func TestHandleUserMessagePlainAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleAssistant, Content: "No tools needed."},
	}}
	transport := &fakeTransport{tools: petTools()}
	conv := &Conversation{}

	answer, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "hello")
	require.NoError(t, err)
	assert.Equal(t, "No tools needed.", answer)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, conv.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, conv.Messages[1].Role)
	assert.Empty(t, transport.invoked)
}

func TestHandleUserMessageSingleToolCall(t *testing.T) {
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{
				Name:      "list_pets",
				Arguments: `{"limit": 3}`,
			},
		},
		{Role: openai.ChatMessageRoleAssistant, Content: "You have one pet: rex."},
	}}
	transport := &fakeTransport{tools: petTools(), result: `[{"name":"rex"}]`}
	conv := &Conversation{}

	answer, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "what pets do I have?")
	require.NoError(t, err)
	assert.Equal(t, "You have one pet: rex.", answer)

	// Exactly one invocation with the parsed arguments.
	assert.Equal(t, []string{"list_pets"}, transport.invoked)
	assert.Equal(t, map[string]any{"limit": float64(3)}, transport.lastArgs)

	// State order: user, assistant function call, function result, final answer.
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleUser, conv.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, conv.Messages[1].Role)
	require.NotNil(t, conv.Messages[1].FunctionCall)
	assert.Equal(t, openai.ChatMessageRoleFunction, conv.Messages[2].Role)
	assert.Equal(t, "list_pets", conv.Messages[2].Name)
	assert.Equal(t, `[{"name":"rex"}]`, conv.Messages[2].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, conv.Messages[3].Role)

	// The advertised functions mirror the tool list.
	require.NotEmpty(t, llm.requests)
	require.Len(t, llm.requests[0].Functions, 1)
	assert.Equal(t, "list_pets", llm.requests[0].Functions[0].Name)

	// Each round prepends the system prompt without recording it.
	assert.Equal(t, openai.ChatMessageRoleSystem, llm.requests[0].Messages[0].Role)
	assert.NotEqual(t, openai.ChatMessageRoleSystem, conv.Messages[0].Role)
}

func TestHandleUserMessageToolFailureContinuesLoop(t *testing.T) {
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "list_pets", Arguments: `{}`},
		},
		{Role: openai.ChatMessageRoleAssistant, Content: "The pet list is unavailable right now."},
	}}
	transport := &fakeTransport{tools: petTools(), callErr: errors.New("backend returned HTTP 500")}
	conv := &Conversation{}

	answer, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "list pets")
	require.NoError(t, err)
	assert.Equal(t, "The pet list is unavailable right now.", answer)

	// The failure is surfaced to the agent as a marked tool result.
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleFunction, conv.Messages[2].Role)
	assert.Contains(t, conv.Messages[2].Content, "⚠️ tool error: ")
	assert.Contains(t, conv.Messages[2].Content, "backend returned HTTP 500")
}

func TestHandleUserMessageBadArgumentsJSON(t *testing.T) {
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "list_pets", Arguments: `{not json`},
		},
		{Role: openai.ChatMessageRoleAssistant, Content: "done"},
	}}
	transport := &fakeTransport{tools: petTools()}
	conv := &Conversation{}

	_, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "list pets")
	require.NoError(t, err)

	// The malformed call never reaches the tool server.
	assert.Empty(t, transport.invoked)
	assert.Contains(t, conv.Messages[2].Content, "⚠️ tool error: ")
}

func TestHandleUserMessageListToolsFailure(t *testing.T) {
	llm := &scriptedLLM{}
	transport := &fakeTransport{listErr: errors.New("connection refused")}
	conv := &Conversation{}

	_, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "hello")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeToolProtocol))

	// No LLM round-trip happened; the user message stays for a retry.
	assert.Empty(t, llm.requests)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, conv.Messages[0].Role)
}

func TestHandleUserMessageLLMFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	transport := &fakeTransport{tools: petTools()}
	conv := &Conversation{}

	_, err := New(llm, "").HandleUserMessage(context.Background(), conv, transport, "hello")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeLLM))
	require.Len(t, conv.Messages, 1)
}

func TestHandleUserMessageRoundBudget(t *testing.T) {
	// The model keeps requesting the same tool forever.
	llm := &scriptedLLM{replies: []openai.ChatCompletionMessage{
		{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "list_pets", Arguments: `{}`},
		},
	}}
	transport := &fakeTransport{tools: petTools(), result: "[]"}
	conv := &Conversation{}

	answer, err := New(llm, "").WithMaxRounds(3).HandleUserMessage(context.Background(), conv, transport, "loop")
	require.NoError(t, err)
	assert.Contains(t, answer, "Tool budget exhausted after 3 rounds")

	assert.Len(t, llm.requests, 3)
	assert.Len(t, transport.invoked, 3)

	// Terminal answer is recorded as the final assistant turn.
	last := conv.Messages[len(conv.Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleAssistant, last.Role)
	assert.Equal(t, answer, last.Content)
}

func TestWithMaxRoundsIgnoresInvalid(t *testing.T) {
	o := New(&scriptedLLM{}, "")
	o.WithMaxRounds(0)
	assert.Equal(t, DefaultMaxRounds, o.maxRounds)
}
