// Package dispatch provides the outbound HTTP client used by running tool
// servers. A client is bound to one backend base URL, a set of static
// credential headers/query parameters, and a structured call log sink.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/yosida95/uritemplate/v3"

	"github.com/toolbridge/toolbridge/pkg/errs"
)

// requestTimeout is the fixed per-call budget. Callers cannot bypass it.
const requestTimeout = 20 * time.Second

// LogSink receives one line per completed exchange, formatted
// "<METHOD> <URL> → <STATUS>".
type LogSink func(line string)

// Request describes one outbound REST call. Path is an OpenAPI-style
// template ("/pets/{petId}") expanded from PathParams.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]any
	Query      map[string]string
	Headers    map[string]string
	Body       []byte // JSON request body, optional
}

// Response is the backend's reply. Body is fully read and the connection
// released before Do returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client dispatches authenticated calls against a single backend.
type Client struct {
	baseURL       string
	staticHeaders map[string]string
	staticQuery   map[string]string
	sink          LogSink
	httpClient    *http.Client
}

// New creates a client bound to baseURL. The static headers and query
// parameters are merged into every call; per-call values with the same name
// take precedence since they represent explicit operation parameters.
func New(baseURL string, staticHeaders, staticQuery map[string]string, sink LogSink) *Client {
	if sink == nil {
		sink = func(string) {}
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		staticHeaders: staticHeaders,
		staticQuery:   staticQuery,
		sink:          sink,
		httpClient:    &http.Client{Timeout: requestTimeout},
	}
}

// Do performs the call. Every completed exchange, success or HTTP error
// status, emits one log line to the sink. Transport failures (timeout, DNS,
// refused connection) return an errs.TypeDispatch error with no response.
// HTTP statuses >= 400 return both the response and a TypeDispatch error so
// the caller can still surface the body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target, body)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeDispatch, "failed to build request")
	}

	for name, value := range c.staticHeaders {
		httpReq.Header.Set(name, value)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeDispatch,
			fmt.Sprintf("%s %s failed", strings.ToUpper(req.Method), target))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeDispatch, "failed to read response body")
	}

	c.sink(fmt.Sprintf("%s %s → %d", strings.ToUpper(req.Method), target, httpResp.StatusCode))

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}
	if httpResp.StatusCode >= 400 {
		return resp, errs.New(errs.TypeDispatch,
			fmt.Sprintf("HTTP %d from backend", httpResp.StatusCode), target)
	}
	return resp, nil
}

// buildURL expands the path template and merges static and per-call query
// parameters, per-call values winning on name collisions.
func (c *Client) buildURL(req Request) (string, error) {
	path := req.Path
	if strings.Contains(path, "{") {
		tmpl, err := uritemplate.New(path)
		if err != nil {
			return "", errs.Wrap(err, errs.TypeDispatch, "invalid path template")
		}
		values := uritemplate.Values{}
		for name, value := range req.PathParams {
			values.Set(name, uritemplate.String(cast.ToString(value)))
		}
		path, err = tmpl.Expand(values)
		if err != nil {
			return "", errs.Wrap(err, errs.TypeDispatch, "failed to expand path template")
		}
	}

	query := url.Values{}
	for name, value := range c.staticQuery {
		query.Set(name, value)
	}
	for name, value := range req.Query {
		query.Set(name, value)
	}

	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target, nil
}
