// Package partition classifies workflow steps by execution cost and groups
// them into latency-class queues with a dependency-aware execution plan.
package partition

import (
	"strings"

	"github.com/tidewater/conveyor/pkg/models"
)

// Classification is the execution-cost category of a step.
type Classification string

const (
	IOBound  Classification = "io_bound"
	CPUBound Classification = "cpu_bound"
	Mixed    Classification = "mixed"
)

// Keyword vocabularies scored against a step's type, action, and name text.
var (
	ioKeywords = []string{
		"api", "http", "request", "fetch", "download", "upload", "email",
		"notification", "webhook", "database", "query", "save", "update",
		"create", "delete", "read", "write",
	}

	cpuKeywords = []string{
		"calculate", "compute", "process", "transform", "analyze", "aggregate",
		"generate", "encode", "decode", "compress", "encrypt", "hash", "sort",
		"filter", "map", "reduce",
	}
)

// Classifier assigns an execution-cost category to steps. Stateless;
// classification is deterministic given identical input.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify categorizes one action. An explicit queue hint wins
// unconditionally; otherwise the I/O and CPU vocabularies are scored by
// case-insensitive substring counting and the strictly higher score wins,
// with ties (including zero-zero) falling back to Mixed.
func (c *Classifier) Classify(action *models.WorkflowAction) Classification {
	switch action.QueueHint {
	case models.QueueHintIO:
		return IOBound
	case models.QueueHintCPU:
		return CPUBound
	}

	text := strings.ToLower(strings.Join([]string{
		string(action.ActionType),
		actionVerb(action),
		action.Name,
	}, " "))

	ioScore := keywordScore(text, ioKeywords)
	cpuScore := keywordScore(text, cpuKeywords)

	switch {
	case ioScore > cpuScore:
		return IOBound
	case cpuScore > ioScore:
		return CPUBound
	default:
		return Mixed
	}
}

func keywordScore(text string, keywords []string) int {
	score := 0
	for _, keyword := range keywords {
		score += strings.Count(text, keyword)
	}

	return score
}

// actionVerb extracts an optional free-form action descriptor from the
// payload so handler-specific wording participates in scoring.
func actionVerb(action *models.WorkflowAction) string {
	if verb, ok := action.Payload["action"].(string); ok {
		return verb
	}

	return ""
}
