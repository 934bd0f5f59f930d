// Package loader fetches OpenAPI/Swagger documents over HTTP and parses them
// into the normalized kin-openapi document model.
//
// The served content type is not trusted: many servers label YAML specs as
// JSON and vice versa, so the loader probes the body as JSON first and falls
// back to YAML. Callers decide freshness; nothing is cached here.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/toolbridge/toolbridge/pkg/errs"
)

// fetchTimeout bounds the spec download, matching the dispatch client budget.
const fetchTimeout = 20 * time.Second

// Load fetches the specification document at url and parses it.
// Non-2xx responses and transport failures yield an errs.TypeFetch error;
// bodies that are neither valid JSON nor valid YAML yield errs.TypeParse.
func Load(ctx context.Context, url string) (*openapi3.T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeFetch, "invalid spec URL")
	}

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeFetch, "failed to fetch spec")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.New(errs.TypeFetch,
			fmt.Sprintf("HTTP %d when fetching spec", resp.StatusCode), url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeFetch, "failed to read spec body")
	}

	return LoadFromData(body)
}

// LoadFromData parses a specification from raw bytes, attempting JSON first
// and falling back to YAML.
func LoadFromData(data []byte) (*openapi3.T, error) {
	normalized, err := normalizeToJSON(data)
	if err != nil {
		return nil, err
	}

	doc, err := openapi3.NewLoader().LoadFromData(normalized)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeParse, "failed to parse OpenAPI document")
	}
	return doc, nil
}

// normalizeToJSON probes data as JSON and, failing that, converts YAML to
// JSON so the rest of the pipeline deals with a single representation.
func normalizeToJSON(data []byte) ([]byte, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err == nil {
		return data, nil
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errs.Wrap(err, errs.TypeParse, "spec body is neither JSON nor YAML")
	}
	// yaml.v3 produces map[string]any for mappings, which marshals directly.
	normalized, err := json.Marshal(tree)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeParse, "failed to normalize YAML spec")
	}
	return normalized, nil
}
