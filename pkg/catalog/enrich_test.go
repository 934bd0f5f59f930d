package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toolbridge/toolbridge/pkg/models"
)

type fakeDescriber struct {
	fail map[string]bool
}

func (f *fakeDescriber) Describe(ctx context.Context, op models.OperationDescriptor) (string, string, error) {
	if f.fail[op.OperationID] {
		return "", "", errors.New("upstream unavailable")
	}
	return "Enriched " + op.OperationID, op.OperationID + "_alias", nil
}

func TestEnrich(t *testing.T) {
	profile := models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100)
	profile.Operations = map[string]models.OperationDescriptor{
		"get /pets":  {OperationID: "listPets", Method: "get", Path: "/pets", Description: "original"},
		"post /pets": {OperationID: "createPet", Method: "post", Path: "/pets", Description: "original"},
	}

	Enrich(context.Background(), profile, &fakeDescriber{})

	assert.Equal(t, "Enriched listPets", profile.Operations["get /pets"].Description)
	assert.Equal(t, "Enriched createPet", profile.Operations["post /pets"].Description)
	assert.Equal(t, "listPets_alias", profile.ToolNames["listPets"])
	assert.Equal(t, "createPet_alias", profile.ToolNames["createPet"])
}

func TestEnrichFailureLeavesOperationUntouched(t *testing.T) {
	profile := models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100)
	profile.Operations = map[string]models.OperationDescriptor{
		"get /pets":  {OperationID: "listPets", Method: "get", Path: "/pets", Description: "original"},
		"post /pets": {OperationID: "createPet", Method: "post", Path: "/pets", Description: "original"},
	}

	Enrich(context.Background(), profile, &fakeDescriber{fail: map[string]bool{"listPets": true}})

	// The failed operation keeps its prior description and gains no alias;
	// its sibling is still enriched.
	assert.Equal(t, "original", profile.Operations["get /pets"].Description)
	assert.NotContains(t, profile.ToolNames, "listPets")
	assert.Equal(t, "Enriched createPet", profile.Operations["post /pets"].Description)
}

func TestEnrichNilDescriber(t *testing.T) {
	profile := models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100)
	profile.Operations = map[string]models.OperationDescriptor{
		"get /pets": {OperationID: "listPets"},
	}

	Enrich(context.Background(), profile, nil)
	assert.Equal(t, models.OperationDescriptor{OperationID: "listPets"}, profile.Operations["get /pets"])
}

func TestSanitizeAlias(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"list_pets", "list_pets"},
		{"List Pets", "list_pets"},
		{"`list-pets`", "list_pets"},
		{"  fetch_weather_data.  ", "fetch_weather_data"},
		{"___", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeAlias(tt.in))
	}
}
