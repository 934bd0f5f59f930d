// schema.go
package bridge

import (
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// escapeParameterName converts parameter names with brackets ("filter[id]")
// to schema-safe names ("filter_id_"). The trailing underscore marks the name
// as escaped so it cannot collide with a naturally occurring name.
func escapeParameterName(name string) string {
	if !strings.ContainsAny(name, "[]") {
		return name
	}
	escaped := strings.ReplaceAll(name, "[", "_")
	escaped = strings.ReplaceAll(escaped, "]", "_")
	if !strings.HasSuffix(escaped, "_") {
		escaped += "_"
	}
	return escaped
}

// extractProperty recursively converts an OpenAPI schema into a JSON-schema
// property map. allOf is merged; oneOf/anyOf get best-effort union handling;
// type, format, description, enum, default, example, object properties and
// array items carry over directly.
func extractProperty(s *openapi3.SchemaRef) map[string]any {
	if s == nil || s.Value == nil {
		return nil
	}
	val := s.Value
	prop := map[string]any{}

	if len(val.AllOf) > 0 {
		for _, sub := range val.AllOf {
			mergeProperty(prop, extractProperty(sub))
		}
	}
	if len(val.OneOf) > 0 {
		variants := []any{}
		for _, sub := range val.OneOf {
			if p := extractProperty(sub); p != nil {
				variants = append(variants, p)
			}
		}
		prop["oneOf"] = variants
	}
	if len(val.AnyOf) > 0 {
		fmt.Fprintf(os.Stderr, "[WARN] anyOf used in schema; only basic support is provided.\n")
		variants := []any{}
		for _, sub := range val.AnyOf {
			if p := extractProperty(sub); p != nil {
				variants = append(variants, p)
			}
		}
		prop["anyOf"] = variants
	}

	if val.Type != nil && len(*val.Type) > 0 {
		prop["type"] = (*val.Type)[0]
	}
	if val.Format != "" {
		prop["format"] = val.Format
	}
	if val.Description != "" {
		prop["description"] = val.Description
	}
	if len(val.Enum) > 0 {
		prop["enum"] = val.Enum
	}
	if val.Default != nil {
		prop["default"] = val.Default
	}
	if val.Example != nil {
		prop["example"] = val.Example
	}

	if val.Type != nil && val.Type.Is("object") && val.Properties != nil {
		objProps := map[string]any{}
		for name, sub := range val.Properties {
			objProps[name] = extractProperty(sub)
		}
		prop["properties"] = objProps
		if len(val.Required) > 0 {
			prop["required"] = val.Required
		}
	}
	if val.Type != nil && val.Type.Is("array") && val.Items != nil {
		prop["items"] = extractProperty(val.Items)
	}
	return prop
}

// mergeProperty folds src into dst. Object properties accumulate across
// subschemas and required lists concatenate; every other key is overwritten by
// the later subschema.
func mergeProperty(dst, src map[string]any) {
	for k, v := range src {
		switch k {
		case "properties":
			existing, ok := dst["properties"].(map[string]any)
			if !ok {
				dst[k] = v
				continue
			}
			for name, sub := range v.(map[string]any) {
				existing[name] = sub
			}
		case "required":
			existing, ok := dst["required"].([]string)
			if !ok {
				dst[k] = v
				continue
			}
			dst[k] = append(existing, v.([]string)...)
		default:
			dst[k] = v
		}
	}
}

// BuildInputSchema converts an operation's parameters and JSON request body
// into a single JSON-schema object used both as the tool's advertised
// input_schema and for argument validation before dispatch.
func BuildInputSchema(params openapi3.Parameters, requestBody *openapi3.RequestBodyRef) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	properties := schema["properties"].(map[string]any)
	var required []string

	for _, ref := range params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		if p.In != "query" && p.In != "path" && p.In != "header" && p.In != "cookie" {
			fmt.Fprintf(os.Stderr, "[WARN] Parameter '%s' uses unsupported location '%s'.\n", p.Name, p.In)
			continue
		}
		prop := extractProperty(p.Schema)
		if prop == nil {
			prop = map[string]any{"type": "string"}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		escaped := escapeParameterName(p.Name)
		properties[escaped] = prop
		if p.Required {
			required = append(required, escaped)
		}
	}

	if requestBody != nil && requestBody.Value != nil {
		mt := jsonContent(requestBody.Value.Content)
		if mt != nil && mt.Schema != nil && mt.Schema.Value != nil {
			bodyProp := extractProperty(mt.Schema)
			if bodyProp == nil {
				bodyProp = map[string]any{"type": "object"}
			}
			bodyProp["description"] = "The JSON request body."
			properties["requestBody"] = bodyProp
			if requestBody.Value.Required {
				required = append(required, "requestBody")
			}
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// jsonContent finds the JSON media type of a request body, tolerating
// parameters in the content-type value ("application/json; charset=utf-8").
func jsonContent(content openapi3.Content) *openapi3.MediaType {
	for name, mt := range content {
		base := name
		if idx := strings.IndexByte(name, ';'); idx > 0 {
			base = strings.TrimSpace(name[:idx])
		}
		if base == "application/json" || base == "application/vnd.api+json" {
			return mt
		}
		fmt.Fprintf(os.Stderr, "[WARN] Request body media type '%s' is not fully supported.\n", name)
	}
	return nil
}
