// Package chat drives the agent/tool protocol loop: it advertises a running
// tool server's tools to the LLM as callable functions, executes any function
// calls the model requests, feeds the results back, and returns the model's
// final answer.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toolbridge/toolbridge/pkg/bridge"
	"github.com/toolbridge/toolbridge/pkg/errs"
)

// DefaultMaxRounds caps LLM round-trips per user turn so the loop always
// terminates even against a model that keeps requesting tools.
const DefaultMaxRounds = 8

// llmTimeout bounds one chat completion round-trip.
const llmTimeout = 60 * time.Second

const defaultSystemPrompt = "Use the available tools when they help answer the user."

// toolErrorPrefix marks synthesized tool-result text carrying a failure, so
// the agent can see and react to it instead of the turn aborting.
const toolErrorPrefix = "⚠️ tool error: "

// ChatCompleter is the slice of the OpenAI client the orchestrator needs.
// *openai.Client satisfies it; tests substitute a scripted implementation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolTransport lists and invokes tools on a running tool server.
// *bridge.Client satisfies it.
type ToolTransport interface {
	ListTools(ctx context.Context) ([]bridge.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
}

// Conversation is the append-only message history of one chat session. It is
// owned exclusively by the orchestrator for the session's duration: turns are
// only ever appended, never mutated.
type Conversation struct {
	Messages []openai.ChatCompletionMessage
}

// Orchestrator runs the tool-calling conversation loop against one LLM.
type Orchestrator struct {
	llm       ChatCompleter
	model     string
	maxRounds int
	system    string
}

// New creates an orchestrator for the given completer and model. An empty
// model falls back to gpt-3.5-turbo-1106.
func New(llm ChatCompleter, model string) *Orchestrator {
	if model == "" {
		model = "gpt-3.5-turbo-1106"
	}
	return &Orchestrator{
		llm:       llm,
		model:     model,
		maxRounds: DefaultMaxRounds,
		system:    defaultSystemPrompt,
	}
}

// WithMaxRounds overrides the per-turn round budget. Values below one are
// ignored.
func (o *Orchestrator) WithMaxRounds(n int) *Orchestrator {
	if n >= 1 {
		o.maxRounds = n
	}
	return o
}

// HandleUserMessage appends the user's message, fetches the tool list from
// the running server, and loops: each LLM reply either selects a function
// call, which is executed strictly sequentially with its result appended as a
// function turn, or is a plain answer, which ends the turn.
//
// Tool-list failures abort the turn before any LLM round-trip; the user
// message stays recorded and no assistant reply is appended. Tool invocation
// failures never abort the loop: the error text is surfaced to the agent as
// the tool result. LLM failures abort the turn, again keeping the user
// message so a retry does not require re-entering it.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, conv *Conversation, tools ToolTransport, text string) (string, error) {
	conv.Messages = append(conv.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	available, err := tools.ListTools(ctx)
	if err != nil {
		return "", errs.Wrap(err, errs.TypeToolProtocol, "failed to list tools")
	}

	functions := make([]openai.FunctionDefinition, 0, len(available))
	for _, t := range available {
		functions = append(functions, openai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	for round := 0; round < o.maxRounds; round++ {
		resp, err := o.complete(ctx, openai.ChatCompletionRequest{
			Model:     o.model,
			Messages:  o.withSystem(conv.Messages),
			Functions: functions,
		})
		if err != nil {
			return "", errs.Wrap(err, errs.TypeLLM, "chat round-trip failed")
		}
		if len(resp.Choices) == 0 {
			return "", errs.New(errs.TypeLLM, "chat reply has no choices", o.model)
		}

		msg := resp.Choices[0].Message
		if msg.FunctionCall == nil {
			conv.Messages = append(conv.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			})
			return msg.Content, nil
		}

		result := o.invokeTool(ctx, tools, msg.FunctionCall)

		conv.Messages = append(conv.Messages, openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: msg.FunctionCall,
		})
		conv.Messages = append(conv.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleFunction,
			Name:    msg.FunctionCall.Name,
			Content: result,
		})
	}

	answer := fmt.Sprintf("Tool budget exhausted after %d rounds without a final answer.", o.maxRounds)
	conv.Messages = append(conv.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: answer,
	})
	return answer, nil
}

// complete runs one bounded chat completion round-trip.
func (o *Orchestrator) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	return o.llm.CreateChatCompletion(ctx, req)
}

// invokeTool parses the function-call arguments and executes the tool. Every
// failure mode is folded into error-marked result text.
func (o *Orchestrator) invokeTool(ctx context.Context, tools ToolTransport, call *openai.FunctionCall) string {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolErrorPrefix + fmt.Sprintf("arguments are not valid JSON: %v", err)
		}
	}

	result, err := tools.CallTool(ctx, call.Name, args)
	if err != nil {
		return toolErrorPrefix + err.Error()
	}
	return result
}

func (o *Orchestrator) withSystem(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.system,
	})
	return append(out, messages...)
}
