// Package agent runs tool-augmented generation: the model may call tools from
// configured MCP servers before producing its answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/finki-hub/finki-chat-bot/internal/llm"
	"github.com/finki-hub/finki-chat-bot/internal/mcp"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

var (
	// ErrNoToolServers is returned when no MCP servers are configured.
	ErrNoToolServers = errors.New("agent: no tool servers configured")
	// ErrNoTools is returned when the configured servers expose no tools.
	ErrNoTools = errors.New("agent: tool servers expose no tools")
	// ErrUnsupportedAgentModel is returned for models without a tool-calling endpoint.
	ErrUnsupportedAgentModel = errors.New("agent: model has no tool-calling endpoint")
	// ErrToolLoopExceeded is returned when the model keeps calling tools past the turn limit.
	ErrToolLoopExceeded = errors.New("agent: tool loop exceeded turn limit")
)

// maxTurns bounds the generate-call-generate loop.
const maxTurns = 5

// Options configures a Runner.
type Options struct {
	// Servers are the MCP tool servers to draw tools from.
	Servers []*mcp.Client
	// OpenAIAPIKey authorizes tool calls on hosted OpenAI models.
	OpenAIAPIKey string
	// OllamaBaseURL is the Ollama server root; its OpenAI-compatible endpoint
	// under /v1 serves tool calls for local models.
	OllamaBaseURL string
	Logger        *slog.Logger
}

// Runner implements tool-augmented streaming generation over the
// OpenAI-compatible chat completions protocol.
type Runner struct {
	servers      []*mcp.Client
	openaiClient openaisdk.Client
	ollamaClient openaisdk.Client
	logger       *slog.Logger
}

// NewRunner creates a runner for the given tool servers and backends.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		servers:      opts.Servers,
		openaiClient: openaisdk.NewClient(option.WithAPIKey(opts.OpenAIAPIKey)),
		ollamaClient: openaisdk.NewClient(
			option.WithBaseURL(strings.TrimSuffix(opts.OllamaBaseURL, "/")+"/v1"),
			option.WithAPIKey("ollama"),
		),
		logger: opts.Logger,
	}
}

// boundTool ties a discovered tool to the server that exposes it.
type boundTool struct {
	server *mcp.Client
	def    openaisdk.ChatCompletionToolUnionParam
}

// collectTools lists tools across all servers. Servers that fail to answer are
// skipped; a name exposed by two servers resolves to the first one.
func (r *Runner) collectTools(ctx context.Context) map[string]boundTool {
	bound := make(map[string]boundTool)

	for _, server := range r.servers {
		tools, err := server.ListTools(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "tool server unavailable, skipping",
				"endpoint", server.Endpoint(),
				"error", err,
			)

			continue
		}

		for _, t := range tools {
			if _, exists := bound[t.Name]; exists {
				continue
			}

			var schema map[string]any
			if len(t.InputSchema) > 0 {
				if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
					r.logger.WarnContext(ctx, "tool has invalid input schema, skipping",
						"tool", t.Name,
						"error", err,
					)

					continue
				}
			}

			bound[t.Name] = boundTool{
				server: server,
				def: openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
					Name:        t.Name,
					Description: param.NewOpt(t.Description),
					Parameters:  openaisdk.FunctionParameters(schema),
				}),
			}
		}
	}

	return bound
}

// clientFor returns the OpenAI-compatible client serving the model.
func (r *Runner) clientFor(model models.Model) (openaisdk.Client, error) {
	provider, ok := model.Provider()
	if !ok {
		return openaisdk.Client{}, fmt.Errorf("%w: %s", ErrUnsupportedAgentModel, model)
	}

	switch provider {
	case models.ProviderOpenAI:
		return r.openaiClient, nil
	case models.ProviderOllama:
		return r.ollamaClient, nil
	default:
		return openaisdk.Client{}, fmt.Errorf("%w: %s", ErrUnsupportedAgentModel, model)
	}
}

// Stream runs the tool loop. It returns an error before any generation when
// the agent path cannot serve this request at all; failures inside the loop
// arrive in-band as a terminal event.
func (r *Runner) Stream(ctx context.Context, params llm.Params, prompt llm.Prompt) (<-chan llm.Event, error) {
	if len(r.servers) == 0 {
		return nil, ErrNoToolServers
	}

	client, err := r.clientFor(params.Model)
	if err != nil {
		return nil, err
	}

	tools := r.collectTools(ctx)
	if len(tools) == 0 {
		return nil, ErrNoTools
	}

	out := make(chan llm.Event)

	go func() {
		defer close(out)
		r.run(ctx, client, params, prompt, tools, out)
	}()

	return out, nil
}

func (r *Runner) run(ctx context.Context, client openaisdk.Client, params llm.Params, prompt llm.Prompt, tools map[string]boundTool, out chan<- llm.Event) {
	toolDefs := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolDefs = append(toolDefs, t.def)
	}

	messages := []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.SystemMessage(prompt.System),
		openaisdk.UserMessage(prompt.User),
	}

	for turn := 0; turn < maxTurns; turn++ {
		stream := client.Chat.Completions.NewStreaming(ctx, openaisdk.ChatCompletionNewParams{
			Model:               string(params.Model),
			Messages:            messages,
			Tools:               toolDefs,
			Temperature:         param.NewOpt(params.Temperature),
			TopP:                param.NewOpt(params.TopP),
			MaxCompletionTokens: param.NewOpt(int64(params.MaxTokens)),
		})

		var acc openaisdk.ChatCompletionAccumulator

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 {
				continue
			}

			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}

			select {
			case out <- llm.Event{Text: text}:
			case <-ctx.Done():
				stream.Close()

				return
			}
		}

		if err := stream.Err(); err != nil {
			if !errors.Is(err, context.Canceled) {
				select {
				case out <- llm.Event{Err: fmt.Errorf("agent generation: %w", err)}:
				case <-ctx.Done():
				}
			}

			return
		}

		if len(acc.Choices) == 0 {
			select {
			case out <- llm.Event{Err: errors.New("agent: empty completion")}:
			case <-ctx.Done():
			}

			return
		}

		msg := acc.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return
		}

		messages = append(messages, msg.ToParam())

		for _, call := range msg.ToolCalls {
			messages = append(messages, openaisdk.ToolMessage(r.invoke(ctx, tools, call), call.ID))
		}
	}

	select {
	case out <- llm.Event{Err: ErrToolLoopExceeded}:
	case <-ctx.Done():
	}
}

// invoke runs one tool call. Failures come back as text so the model can
// recover instead of aborting the whole answer.
func (r *Runner) invoke(ctx context.Context, tools map[string]boundTool, call openaisdk.ChatCompletionMessageToolCallUnion) string {
	name := call.Function.Name

	bound, ok := tools[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments for %q: %v", name, err)
		}
	}

	result, err := bound.server.CallTool(ctx, name, args)
	if err != nil {
		r.logger.WarnContext(ctx, "tool call failed",
			"tool", name,
			"error", err,
		)

		return fmt.Sprintf("error: %v", err)
	}

	return result
}

var _ llm.AgentStreamer = (*Runner)(nil)
