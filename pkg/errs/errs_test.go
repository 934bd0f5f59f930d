package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with details",
			err:      New(TypeFetch, "HTTP 404 when fetching spec", "http://example.com/spec.json"),
			expected: "fetch: HTTP 404 when fetching spec (http://example.com/spec.json)",
		},
		{
			name:     "without details",
			err:      New(TypeLLM, "chat round-trip failed", ""),
			expected: "llm: chat round-trip failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, TypeDispatch, "ignored"))

	wrapped := Wrap(errors.New("connection refused"), TypeDispatch, "GET /pets failed")
	assert.Equal(t, TypeDispatch, wrapped.Type)
	assert.Equal(t, "GET /pets failed", wrapped.Message)
	assert.Equal(t, "connection refused", wrapped.Details)
}

func TestIsType(t *testing.T) {
	err := New(TypeParse, "spec body is neither JSON nor YAML", "")

	assert.True(t, IsType(err, TypeParse))
	assert.False(t, IsType(err, TypeFetch))
	assert.False(t, IsType(errors.New("plain"), TypeParse))
	assert.False(t, IsType(nil, TypeParse))
}

func TestIsTypeThroughWrapping(t *testing.T) {
	inner := New(TypeStore, "profile not found", "petstore")
	outer := fmt.Errorf("loading profiles: %w", inner)

	assert.True(t, IsType(outer, TypeStore))
	assert.Equal(t, TypeStore, GetType(outer))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, TypeCompile, GetType(New(TypeCompile, "duplicate tool name", "listPets")))
	assert.Equal(t, TypeInternal, GetType(errors.New("plain")))
}
