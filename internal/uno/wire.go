package uno

import (
	"encoding/json"
	"fmt"
)

// The bridge speaks newline-delimited JSON frames. Every request carries a
// correlation id so a response can be matched even if the worker interleaves
// unrelated frames on the stream.

// request is a single operation sent to the worker.
type request struct {
	ID   string         `json:"id"`
	Op   string         `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// response is the worker's answer to a request.
type response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// EngineError is a failure reported by the worker for a single operation.
// It is scoped to that operation and does not affect the worker lifecycle.
type EngineError struct {
	Op      string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %s", e.Op, e.Message)
}

// Operations understood by the worker-side bridge.
const (
	opConvert       = "convert"
	opCompare       = "compare"
	opImportFilters = "import_filters"
	opExportFilters = "export_filters"
	opFilterNames   = "filter_names"
)
