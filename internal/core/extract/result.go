package extract

import (
	"encoding/json"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

// Result is the final outcome of one task on one document.
type Result struct {
	Task         constants.Task   `json:"task"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
	Confidence   float64          `json:"confidence_score"`
	Succeeded    bool             `json:"succeeded"`
	AttemptsUsed int              `json:"attempts_used"`
	FromCache    bool             `json:"from_cache,omitempty"`
	LastResponse string           `json:"last_response,omitempty"`
	Errors       []llm.FieldError `json:"errors,omitempty"`
	Err          string           `json:"error,omitempty"`
}

// Failed builds a result that never reached the model.
func Failed(task constants.Task, reason string) Result {
	return Result{Task: task, Err: reason}
}

// Confidence reads confidence_score from a validated payload, clamped to [0,1].
// For tables the top-level score wins, else the mean of the per-table scores, else 0.
func Confidence(task constants.Task, payload []byte) float64 {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return 0
	}
	if score, ok := doc["confidence_score"].(float64); ok {
		return clamp(score)
	}
	if task != constants.TaskTable {
		return 0
	}

	tables, _ := doc["tables"].([]any)
	var sum float64
	var n int
	for _, t := range tables {
		table, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if score, ok := table["confidence_score"].(float64); ok {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
