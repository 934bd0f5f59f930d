package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toolbridge/toolbridge/pkg/errs"
)

// Timeouts for loopback calls against a running tool server. A hung tool must
// not block the conversation loop indefinitely.
const (
	listTimeout = 10 * time.Second
	callTimeout = 30 * time.Second
)

// Client talks to a running tool server over the tool wire contract. It is
// what the conversation orchestrator uses to discover and invoke tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the tool server listening on port.
func NewClient(port int) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://localhost:%d", port),
		httpClient: &http.Client{},
	}
}

// ListTools fetches the server's tool list. Failures and unexpected payload
// shapes are errs.TypeToolProtocol.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var resp ListToolsResponse
	if err := c.post(ctx, "/tools/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// CallTool invokes a named tool and returns the first content element's text.
// A tool-level failure (isError true) is returned as an error carrying the
// tool's error text; transport failures are errs.TypeToolProtocol.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var resp CallToolResponse
	if err := c.post(ctx, "/tools/call", CallToolRequest{Name: name, Arguments: arguments}, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", errs.New(errs.TypeToolProtocol, "tool result has no content", name)
	}
	text := resp.Content[0].Text
	if resp.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(err, errs.TypeToolProtocol, "failed to encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return errs.Wrap(err, errs.TypeToolProtocol, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.TypeToolProtocol, "tool server unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(err, errs.TypeToolProtocol, "failed to read tool server response")
	}
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.TypeToolProtocol,
			fmt.Sprintf("tool server returned HTTP %d", resp.StatusCode), string(payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errs.Wrap(err, errs.TypeToolProtocol, "unexpected tool server payload")
	}
	return nil
}
