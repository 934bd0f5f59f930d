// Package bridge compiles a projected OpenAPI document plus a dispatch client
// into a tool server: a catalog of agent-invokable tools exposed over a small
// HTTP wire contract (tool listing and tool invocation).
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"

	"github.com/toolbridge/toolbridge/pkg/catalog"
	"github.com/toolbridge/toolbridge/pkg/dispatch"
	"github.com/toolbridge/toolbridge/pkg/errs"
)

// Tool is one agent-invokable action backed 1:1 by a projected operation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// binding carries everything needed to execute one tool against the backend.
type binding struct {
	tool      Tool
	method    string
	path      string
	params    openapi3.Parameters // path-item and operation parameters, merged
	hasBody   bool
	validator *gojsonschema.Schema
}

// ToolServer holds the compiled tool set bound to one dispatch client.
type ToolServer struct {
	name     string
	client   *dispatch.Client
	tools    []Tool
	bindings map[string]*binding
}

// Compile turns a projected document into a tool server. Tool names come from
// the aliases map (keyed by operationId) when present, otherwise from the
// operationId itself. An empty projection or an uncompilable input schema is
// an errs.TypeCompile failure.
func Compile(name string, doc *openapi3.T, client *dispatch.Client, aliases map[string]string) (*ToolServer, error) {
	if doc == nil {
		return nil, errs.New(errs.TypeCompile, "no spec to compile", name)
	}
	descriptors := catalog.Build(doc)
	if len(descriptors) == 0 {
		return nil, errs.New(errs.TypeCompile, "projected spec contains no operations", name)
	}

	ts := &ToolServer{
		name:     name,
		client:   client,
		bindings: make(map[string]*binding),
	}

	keys := make([]string, 0, len(descriptors))
	for key := range descriptors {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		desc := descriptors[key]
		item := doc.Paths.Value(desc.Path)
		if item == nil {
			continue
		}
		op := item.GetOperation(strings.ToUpper(desc.Method))
		if op == nil {
			continue
		}

		params := append(openapi3.Parameters{}, item.Parameters...)
		params = append(params, op.Parameters...)

		schema := BuildInputSchema(params, op.RequestBody)
		validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return nil, errs.Wrap(err, errs.TypeCompile,
				fmt.Sprintf("input schema for %s does not compile", key))
		}

		toolName := desc.OperationID
		if alias, ok := aliases[desc.OperationID]; ok && alias != "" {
			toolName = alias
		}
		if _, dup := ts.bindings[toolName]; dup {
			return nil, errs.New(errs.TypeCompile, "duplicate tool name", toolName)
		}

		b := &binding{
			tool: Tool{
				Name:        toolName,
				Description: desc.Description,
				InputSchema: schema,
			},
			method:    desc.Method,
			path:      desc.Path,
			params:    params,
			hasBody:   op.RequestBody != nil && op.RequestBody.Value != nil,
			validator: validator,
		}
		ts.bindings[toolName] = b
		ts.tools = append(ts.tools, b.tool)
	}

	return ts, nil
}

// Name returns the server's compile-time name.
func (ts *ToolServer) Name() string { return ts.name }

// Tools returns the compiled tool list in stable (key-sorted) order.
func (ts *ToolServer) Tools() []Tool { return ts.tools }

// Execute validates arguments against the tool's input schema and dispatches
// the backing REST call. The returned string is the tool result text; any
// error is a tool-level failure meant to be surfaced to the agent, not to
// abort the conversation.
func (ts *ToolServer) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	b, ok := ts.bindings[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := b.validator.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return "", fmt.Errorf("argument validation failed: %v", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}
		return "", fmt.Errorf("invalid arguments: %s", strings.Join(issues, "; "))
	}

	req := dispatch.Request{
		Method:     b.method,
		Path:       b.path,
		PathParams: map[string]any{},
		Query:      map[string]string{},
		Headers:    map[string]string{},
	}

	for _, ref := range b.params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		value, present := args[escapeParameterName(p.Name)]
		if !present {
			continue
		}
		switch p.In {
		case "path":
			req.PathParams[p.Name] = value
		case "query":
			req.Query[p.Name] = cast.ToString(value)
		case "header":
			req.Headers[p.Name] = cast.ToString(value)
		case "cookie":
			cookie := p.Name + "=" + cast.ToString(value)
			if existing := req.Headers["Cookie"]; existing != "" {
				cookie = existing + "; " + cookie
			}
			req.Headers["Cookie"] = cookie
		}
	}

	if b.hasBody {
		if body, present := args["requestBody"]; present {
			encoded, err := json.Marshal(body)
			if err != nil {
				return "", fmt.Errorf("failed to encode request body: %v", err)
			}
			req.Body = encoded
		}
	}

	resp, err := ts.client.Do(ctx, req)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, string(resp.Body))
		}
		return "", err
	}
	return string(resp.Body), nil
}
