package llm

import (
	"encoding/json"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// BuildSchema returns the JSON-Schema (draft 2020-12 subset) for task as a generic map.
// The same document is embedded in the prompt and compiled by the Validator.
func BuildSchema(task constants.Task) map[string]any {
	switch task {
	case constants.TaskMetadata:
		return buildMetadataSchema()
	case constants.TaskTable:
		return buildTableSchema()
	case constants.TaskKnowledgeGraph:
		return buildGraphSchema()
	}
	return nil
}

// SchemaJSON renders the task schema for prompt embedding.
func SchemaJSON(task constants.Task) string {
	b, _ := json.MarshalIndent(BuildSchema(task), "", "  ")
	return string(b)
}

func buildMetadataSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"title":            nullable("string"),
			"authors":          nullableStringArray(),
			"publication_year": nullable("integer"),
			"keywords":         nullableStringArray(),
			"confidence_score": scoreProp(),
			"raw_text":         map[string]any{"type": "string"},
		},
		"required": []string{"title", "authors", "publication_year", "keywords", "confidence_score"},
	}
}

func buildTableSchema() map[string]any {
	table := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"table_name": map[string]any{"type": "string"},
			"columns": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"uniqueItems": true,
			},
			// row keys are checked against columns after schema validation
			"data": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
			"confidence_score": scoreProp(),
			"raw_text":         map[string]any{"type": "string"},
		},
		"required": []string{"table_name", "columns", "data", "confidence_score", "raw_text"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"tables":           map[string]any{"type": "array", "items": table},
			"confidence_score": scoreProp(),
		},
		"required": []string{"tables"},
	}
}

func buildGraphSchema() map[string]any {
	entity := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
			"type": map[string]any{"type": "string", "enum": constants.EntityTypesAsStrings()},
		},
		"required": []string{"name", "type"},
	}
	relationship := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"source": map[string]any{"type": "string", "minLength": 1},
			"target": map[string]any{"type": "string", "minLength": 1},
			"type":   map[string]any{"type": "string", "enum": constants.RelationshipTypesAsStrings()},
		},
		"required": []string{"source", "target", "type"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"entities":         map[string]any{"type": "array", "items": entity},
			"relationships":    map[string]any{"type": "array", "items": relationship},
			"confidence_score": scoreProp(),
		},
		"required": []string{"entities", "relationships", "confidence_score"},
	}
}

func nullable(t string) map[string]any {
	return map[string]any{"type": []string{t, "null"}}
}

func nullableStringArray() map[string]any {
	return map[string]any{
		"type":  []string{"array", "null"},
		"items": map[string]any{"type": "string"},
	}
}

func scoreProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
}
