package api

import (
	_ "embed"
	"net/http"
	"sync"

	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"sigs.k8s.io/yaml"
)

//go:embed openapi.yaml
var openAPISource []byte

var (
	openAPIJSON    []byte
	openAPIJSONErr error
	openAPIOnce    sync.Once
)

// OpenAPIHandler serves the embedded API description converted to JSON.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			problem.WriteKind(w, r, problem.KindMethod, r.Method+" is not supported here; use GET")
			return
		}

		openAPIOnce.Do(func() {
			openAPIJSON, openAPIJSONErr = yaml.YAMLToJSON(openAPISource)
		})

		if openAPIJSONErr != nil {
			problem.WriteKind(w, r, problem.KindInternal, "openapi document unavailable")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openAPIJSON)
	}
}
