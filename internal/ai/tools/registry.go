// Package tools holds the functions the Game Master assistant can call and
// the registry that resolves, validates and runs them for a run that is
// waiting on tool outputs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsval "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"gamemaster/internal/logger"
)

// ErrToolNotFound matches any error caused by a call to an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("function %s not found", e.Name)
}

func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// InvalidArgumentsError reports arguments that are not JSON or do not match
// the tool's declared schema.
type InvalidArgumentsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error {
	return e.Err
}

type entry struct {
	tool   Tool
	schema *jsval.Schema
}

// ToolRegistry manages the collection of available tools.
// It provides thread-safe registration, lookup, validation and execution.
type ToolRegistry struct {
	tools map[string]entry
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]entry),
	}
}

// RegisterTool compiles the tool's parameter schema and adds it to the
// registry. A tool with the same name is replaced.
func (r *ToolRegistry) RegisterTool(tool Tool) error {
	schema, err := compileSchema(tool)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		logger.Warnf("Replacing existing tool: %s", name)
	}

	r.tools[name] = entry{tool: tool, schema: schema}
	logger.AIDebugf("Registered tool: %s", name)
	return nil
}

// DeregisterTool removes a tool from the registry. Unknown names are a no-op.
func (r *ToolRegistry) DeregisterTool(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		delete(r.tools, name)
		logger.Debugf("Deregistered tool: %s", name)
	}
}

// GetTool returns a tool by name.
func (r *ToolRegistry) GetTool(name string) (Tool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.tool, nil
}

func (r *ToolRegistry) lookup(name string) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	if !exists {
		return entry{}, &ToolNotFoundError{Name: name}
	}
	return e, nil
}

// GetAllTools returns all registered tools sorted by name.
func (r *ToolRegistry) GetAllTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })

	return tools
}

// AssistantTools renders every tool in the vendor's assistant tool format,
// used when creating or updating the assistant.
func (r *ToolRegistry) AssistantTools() []openai.AssistantTool {
	all := r.GetAllTools()
	out := make([]openai.AssistantTool, 0, len(all))
	for _, tool := range all {
		out = append(out, tool.ToAssistantTool())
	}
	return out
}

// ExecuteTool validates args against the tool's schema and runs it.
// The result is normalised to the string submitted as tool output.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, name string, args string) (string, error) {
	e, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return r.execute(ctx, e, args)
}

func (r *ToolRegistry) execute(ctx context.Context, e entry, args string) (string, error) {
	name := e.tool.Name()
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	doc, err := jsval.UnmarshalJSON(strings.NewReader(args))
	if err != nil {
		return "", &InvalidArgumentsError{Tool: name, Err: err}
	}
	if err := e.schema.Validate(doc); err != nil {
		return "", &InvalidArgumentsError{Tool: name, Err: err}
	}

	logger.AIDebugf("Executing tool: %s with args: %s", name, args)
	result, err := e.tool.Execute(ctx, args)
	if err != nil {
		logger.Errorf("Tool execution error: %s: %v", name, err)
		return "", err
	}

	out, err := FormatOutput(result)
	if err != nil {
		return "", fmt.Errorf("failed to format %s output: %w", name, err)
	}
	return out, nil
}

// Dispatch answers one requires_action batch. Every call is resolved before
// anything runs, so an unknown function fails the batch without side
// effects. The resolved calls then run concurrently; the first failure
// cancels the others and no outputs are returned.
func (r *ToolRegistry) Dispatch(ctx context.Context, calls []openai.ToolCall) ([]openai.ToolOutput, error) {
	entries := make([]entry, len(calls))
	for i, call := range calls {
		if call.Type != "" && call.Type != openai.ToolTypeFunction {
			return nil, fmt.Errorf("tool call %s: unsupported tool type %q", call.ID, call.Type)
		}
		e, err := r.lookup(call.Function.Name)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	outputs := make([]openai.ToolOutput, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out, err := r.execute(gctx, entries[i], call.Function.Arguments)
			if err != nil {
				return fmt.Errorf("tool call %s (%s): %w", call.ID, call.Function.Name, err)
			}
			logger.AIDebugf("Tool %s answered call %s, output length: %d chars", call.Function.Name, call.ID, len(out))
			outputs[i] = openai.ToolOutput{ToolCallID: call.ID, Output: out}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func compileSchema(tool Tool) (*jsval.Schema, error) {
	raw, err := json.Marshal(tool.Parameters())
	if err != nil {
		return nil, err
	}

	doc, err := jsval.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	url := tool.Name() + ".json"
	c := jsval.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
