// Package catalog extracts a stable, enumerable operation catalog from an
// OpenAPI document and projects user-selected subsets back into reduced
// documents ready for tool-server compilation.
package catalog

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/toolbridge/toolbridge/pkg/models"
)

// toolMethods is the fixed set of methods considered tool-invocable actions.
// Metadata probes like HEAD and OPTIONS never become tools.
var toolMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// Build walks the document and returns the operation catalog keyed by
// "<method> <path>". Deterministic: the same document always yields the same
// keys and the same synthesized operation ids.
func Build(doc *openapi3.T) map[string]models.OperationDescriptor {
	ops := make(map[string]models.OperationDescriptor)
	if doc == nil || doc.Paths == nil {
		return ops
	}

	usedIDs := make(map[string]bool)
	for _, path := range sortedPaths(doc.Paths) {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, method := range sortedMethods(item) {
			op := item.GetOperation(method)
			if op == nil || !toolMethods[method] {
				continue
			}

			id := op.OperationID
			if id == "" {
				id = synthesizeOperationID(method, path, usedIDs)
			}
			usedIDs[id] = true

			desc := op.Description
			if desc == "" {
				desc = op.Summary
			}

			key := models.OperationKey(method, path)
			ops[key] = models.OperationDescriptor{
				OperationID: id,
				Method:      strings.ToLower(method),
				Path:        path,
				Summary:     op.Summary,
				Description: desc,
				Parameters:  extractParameters(item.Parameters, op.Parameters),
			}
		}
	}
	return ops
}

// SeedEnabled reconciles a profile's enabled map against a freshly built
// catalog: newly discovered operations are seeded present-but-disabled,
// choices for operations still in the spec are preserved, and entries for
// operations that vanished from the spec are dropped. The operations map is
// replaced wholesale.
func SeedEnabled(profile *models.APIProfile, ops map[string]models.OperationDescriptor) {
	if profile.Enabled == nil {
		profile.Enabled = make(map[string]bool)
	}
	for key := range profile.Enabled {
		if _, still := ops[key]; !still {
			delete(profile.Enabled, key)
		}
	}
	for key := range ops {
		if _, seen := profile.Enabled[key]; !seen {
			profile.Enabled[key] = false
		}
	}
	profile.Operations = ops
}

// synthesizeOperationID derives a deterministic id from method and path when
// the spec omits operationId. Paths differing only in braces or separators
// can slug identically, so a short hash of the raw path disambiguates
// collisions instead of assuming slug uniqueness.
func synthesizeOperationID(method, path string, used map[string]bool) string {
	slug := strings.NewReplacer("{", "", "}", "", "/", "_", ".", "_", "-", "_").Replace(path)
	slug = strings.Trim(slug, "_")
	id := strings.ToLower(method)
	if slug != "" {
		id += "_" + slug
	}
	if used[id] {
		h := fnv.New32a()
		h.Write([]byte(path))
		id = fmt.Sprintf("%s_%08x", id, h.Sum32())
	}
	return id
}

// extractParameters flattens path-item level and operation level parameters
// into catalog order, operation level last so it shadows in display.
func extractParameters(groups ...openapi3.Parameters) []models.Parameter {
	var out []models.Parameter
	for _, params := range groups {
		for _, ref := range params {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			out = append(out, models.Parameter{
				Name:        p.Name,
				In:          p.In,
				Required:    p.Required,
				Type:        schemaType(p.Schema),
				Description: p.Description,
			})
		}
	}
	return out
}

func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil || len(*ref.Value.Type) == 0 {
		return ""
	}
	return (*ref.Value.Type)[0]
}

func sortedPaths(paths *openapi3.Paths) []string {
	keys := make([]string, 0, paths.Len())
	for path := range paths.Map() {
		keys = append(keys, path)
	}
	sort.Strings(keys)
	return keys
}

func sortedMethods(item *openapi3.PathItem) []string {
	methods := make([]string, 0, len(item.Operations()))
	for method := range item.Operations() {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}
