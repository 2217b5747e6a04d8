package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// Template is the fixed instruction text for one task. Input text is appended verbatim.
type Template struct {
	Task constants.Task
	ID   string
	Text string
}

// NewTemplate derives the template ID from its text, so any edit changes the cache key.
func NewTemplate(task constants.Task, text string) Template {
	sum := sha256.Sum256([]byte(text))
	return Template{
		Task: task,
		ID:   strings.ToLower(task.String()) + "-" + hex.EncodeToString(sum[:])[:12],
		Text: text,
	}
}

// BasePrompt is the first-attempt prompt for input.
func (t Template) BasePrompt(input string) string {
	return t.Text + input
}

// DefaultTemplates returns one template per task.
func DefaultTemplates() map[constants.Task]Template {
	return map[constants.Task]Template{
		constants.TaskMetadata:       NewTemplate(constants.TaskMetadata, buildMetadataPrompt()),
		constants.TaskKnowledgeGraph: NewTemplate(constants.TaskKnowledgeGraph, buildGraphPrompt()),
		constants.TaskTable:          NewTemplate(constants.TaskTable, buildTablePrompt()),
	}
}

const jsonOnly = "Return ONLY a single valid JSON object that matches the JSON Schema below. " +
	"Do not wrap it in Markdown and do not add any text before or after it."

func buildMetadataPrompt() string {
	parts := []string{
		"You are a geological librarian. Extract bibliographic metadata from the opening text of a geological report.",
		jsonOnly,
		"Use null for title, authors, publication_year or keywords when the text does not state them.",
		"publication_year must be an integer (e.g. 1998), never a string.",
		"confidence_score is your confidence in the extraction, from 0.0 to 1.0.",
	}
	return assemble(parts, constants.TaskMetadata)
}

func buildGraphPrompt() string {
	parts := []string{
		"You are a geoscientist building a knowledge graph from a geological report.",
		jsonOnly,
		"Entity types: " + strings.Join(constants.EntityTypesAsStrings(), ", ") + ".",
		"Relationship types: " + strings.Join(constants.RelationshipTypesAsStrings(), ", ") + ".",
		"Every relationship source and target MUST exactly equal the name of an entity you listed in entities.",
		"Prefer fewer, well-supported relationships over speculative ones.",
	}
	return assemble(parts, constants.TaskKnowledgeGraph)
}

func buildTablePrompt() string {
	parts := []string{
		"You are a data analyst. Find every data table in the text of a geological report (assay results, sample lists, drill intercepts).",
		jsonOnly,
		"For each table give table_name, the ordered columns, and data as one object per row.",
		"Every row object must have exactly the keys listed in columns: no missing keys, no extra keys. Use null for empty cells.",
		"raw_text is the table as it appears in the source text.",
		"If there are no tables, return {\"tables\": []}.",
	}
	return assemble(parts, constants.TaskTable)
}

func assemble(parts []string, task constants.Task) string {
	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(SchemaJSON(task))
	b.WriteString("\n\nText:\n")
	return b.String()
}

// BuildFeedbackPrompt re-sends the base prompt with the previous response and its full error list.
func BuildFeedbackPrompt(base, previous string, result ValidationResult) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n--- FEEDBACK ---\n")
	b.WriteString("Your previous response was not valid.\n\nPrevious response:\n")
	b.WriteString(previous)
	b.WriteString("\n\nValidation errors:\n")
	b.WriteString(result.Summary())
	b.WriteString("\n\nCorrect exactly these errors and return only the corrected JSON object.")
	return b.String()
}
