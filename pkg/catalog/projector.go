package catalog

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/models"
)

// Project returns a deep, independent copy of doc containing only operations
// whose "<method> <path>" key maps to true in allow. Paths left with zero
// methods are dropped entirely. The input document is never mutated.
func Project(doc *openapi3.T, allow map[string]bool) (*openapi3.T, error) {
	if doc == nil {
		return nil, errs.New(errs.TypeCompile, "no spec to project", "")
	}

	// Round-tripping through the loader is the one copy strategy that is
	// guaranteed independent of every shared SchemaRef in the source tree.
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeCompile, "failed to serialize spec for projection")
	}
	reduced, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		return nil, errs.Wrap(err, errs.TypeCompile, "failed to rebuild spec for projection")
	}

	if reduced.Paths == nil {
		return reduced, nil
	}

	surviving := openapi3.NewPaths()
	for _, path := range sortedPaths(reduced.Paths) {
		item := reduced.Paths.Value(path)
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			if !allow[models.OperationKey(method, path)] {
				item.SetOperation(method, nil)
			}
		}
		if len(item.Operations()) > 0 {
			surviving.Set(path, item)
		}
	}
	reduced.Paths = surviving
	return reduced, nil
}
