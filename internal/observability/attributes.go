// Package observability provides metrics for the pipeline and its status server.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrRunner  = "runner"
	attrState   = "state"
	attrStage   = "stage"
	attrOutcome = "outcome"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func runnerAttr(runner string) attribute.KeyValue {
	return attribute.String(attrRunner, runner)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func stageAttr(stage string) attribute.KeyValue {
	return attribute.String(attrStage, stage)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// knownPaths are the status server routes; anything else is folded into
// one label value to bound cardinality.
var knownPaths = map[string]bool{
	"/livez":   true,
	"/readyz":  true,
	"/status":  true,
	"/metrics": true,
}

func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
