package bridge

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
)

// Wire types for the tool server contract.

// ListToolsResponse is the reply to POST /tools/list.
type ListToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the body of POST /tools/call.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentItem is one element of a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResponse is the reply to POST /tools/call. Tool-level failures are
// reported in-band: IsError true and the error text as the first content
// element, so the calling agent can see and react to the failure.
type CallToolResponse struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// HTTPServer serves a compiled ToolServer over the tool wire contract.
type HTTPServer struct {
	tools      *ToolServer
	httpServer *http.Server
}

// NewHTTPServer mounts the tool endpoints on addr. Start must be called to
// begin listening.
func NewHTTPServer(ts *ToolServer, addr string) *HTTPServer {
	s := &HTTPServer{tools: ts}

	mux := http.NewServeMux()
	mux.HandleFunc("/tools/list", s.handleList)
	mux.HandleFunc("/tools/call", s.handleCall)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called. A clean shutdown returns nil.
func (s *HTTPServer) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight calls up to the
// context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ListToolsResponse{Tools: s.tools.Tools()})
}

func (s *HTTPServer) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "tool name is required", http.StatusBadRequest)
		return
	}

	text, err := s.tools.Execute(r.Context(), req.Name, req.Arguments)
	resp := CallToolResponse{}
	if err != nil {
		resp.IsError = true
		resp.Content = []ContentItem{{Type: "text", Text: err.Error()}}
	} else {
		resp.Content = []ContentItem{{Type: "text", Text: text}}
	}
	writeJSON(w, resp)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "healthy",
		"service": s.tools.Name(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
