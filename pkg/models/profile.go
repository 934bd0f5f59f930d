// Package models holds the persistent data model for API profiles and the
// operation catalog derived from their OpenAPI specifications.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// Parameter describes one operation parameter in catalog order.
type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in"` // query, path, header, cookie
	Required    bool   `json:"required"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// OperationDescriptor describes a single REST operation extracted from a spec.
// Descriptors are immutable once built for a given spec version and are
// replaced wholesale on the next reload.
type OperationDescriptor struct {
	OperationID string      `json:"operation_id"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// OperationKey builds the canonical catalog key for a (method, path) pair:
// lowercased method, a space, and the verbatim path including braces.
func OperationKey(method, path string) string {
	return strings.ToLower(method) + " " + path
}

// SplitOperationKey is the inverse of OperationKey. The second return value is
// false when the key is malformed.
func SplitOperationKey(key string) (method, path string, ok bool) {
	method, path, ok = strings.Cut(key, " ")
	return method, path, ok
}

// APIProfile identifies one backend REST API exposed as tools. The zero value
// is not usable; construct with NewAPIProfile.
//
// Runtime-only state (the live server handle, the log ring) is deliberately
// not part of this struct: handles live in the lifecycle manager and logs in
// a per-profile ring attached by the registry, so a profile round-trips
// through JSON without loss.
type APIProfile struct {
	Name    string `json:"name"`
	Project string `json:"project,omitempty"`
	SpecURL string `json:"spec_url"`
	Port    int    `json:"port"`

	AuthHeaderName  string `json:"auth_header_name,omitempty"`
	AuthHeaderValue string `json:"auth_header_value,omitempty"`
	AuthQueryName   string `json:"auth_query_name,omitempty"`
	AuthQueryValue  string `json:"auth_query_value,omitempty"`

	// LLMKey overrides the process-wide OpenAI credential for this profile's
	// chat and enrichment calls. Empty means fall back to the environment key.
	LLMKey string `json:"llm_key,omitempty"`

	// Spec is the normalized specification tree, nil until loaded.
	Spec *openapi3.T `json:"spec,omitempty"`

	// Operations maps operation key ("get /pets") to its descriptor, derived
	// from Spec. Its keys are always a superset of Enabled's keys after a
	// load or refresh.
	Operations map[string]OperationDescriptor `json:"operations,omitempty"`

	// Enabled maps operation key to whether the operation is projected into
	// the live tool set. Missing keys mean disabled.
	Enabled map[string]bool `json:"enabled,omitempty"`

	// ToolNames optionally maps operationId to a short machine-friendly alias
	// exposed to the agent in place of the raw operationId.
	ToolNames map[string]string `json:"tool_names,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewAPIProfile creates a profile with initialized maps.
func NewAPIProfile(name, specURL string, port int) *APIProfile {
	now := time.Now()
	return &APIProfile{
		Name:       name,
		SpecURL:    specURL,
		Port:       port,
		Operations: make(map[string]OperationDescriptor),
		Enabled:    make(map[string]bool),
		ToolNames:  make(map[string]string),
		CreatedAt:  &now,
		UpdatedAt:  &now,
	}
}

// TableName returns the table name backing APIProfile in the profile store.
func (APIProfile) TableName() string {
	return "api_profiles"
}

// Validate checks the fields required before a profile can be saved.
func (p *APIProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.SpecURL == "" {
		return fmt.Errorf("profile spec URL is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("profile port %d out of range", p.Port)
	}
	return nil
}

// StaticHeaders returns the auth header as a header map, or an empty map when
// no header credential is configured.
func (p *APIProfile) StaticHeaders() map[string]string {
	if p.AuthHeaderName == "" {
		return map[string]string{}
	}
	return map[string]string{p.AuthHeaderName: p.AuthHeaderValue}
}

// StaticQuery returns the auth query parameter as a map, or an empty map when
// no query credential is configured.
func (p *APIProfile) StaticQuery() map[string]string {
	if p.AuthQueryName == "" {
		return map[string]string{}
	}
	return map[string]string{p.AuthQueryName: p.AuthQueryValue}
}

// EnabledKeys returns the operation keys currently mapped to true.
func (p *APIProfile) EnabledKeys() map[string]bool {
	allowed := make(map[string]bool)
	for key, on := range p.Enabled {
		if on {
			allowed[key] = true
		}
	}
	return allowed
}

// ToolName resolves the tool name exposed to the agent for an operationId:
// the configured alias when present, otherwise the operationId itself.
func (p *APIProfile) ToolName(operationID string) string {
	if alias, ok := p.ToolNames[operationID]; ok && alias != "" {
		return alias
	}
	return operationID
}
