package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// ErrorKind tags a FieldError with the stage that produced it.
type ErrorKind string

const (
	KindParse       ErrorKind = "parse"
	KindSchema      ErrorKind = "schema"
	KindReferential ErrorKind = "referential"
)

// FieldError is one violation at a path inside the candidate payload.
type FieldError struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

func (e FieldError) String() string {
	return e.Path + ": " + e.Message
}

// ValidationResult lists every violation found in one candidate.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// HasKind reports whether any error is of kind k.
func (r ValidationResult) HasKind(k ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Summary renders the error list one per line, for logs and feedback prompts.
func (r ValidationResult) Summary() string {
	var b strings.Builder
	for i, e := range r.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(e.String())
	}
	return b.String()
}

// Validator checks candidates against the per-task contracts. Safe for concurrent use.
type Validator struct {
	schemas map[constants.Task]*jsonschema.Schema
}

// NewValidator compiles every task schema once.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[constants.Task]*jsonschema.Schema, 3)}
	for _, task := range constants.AllTasks() {
		s, err := compileSchema(task)
		if err != nil {
			return nil, err
		}
		v.schemas[task] = s
	}
	return v, nil
}

func compileSchema(task constants.Task) (*jsonschema.Schema, error) {
	b, err := json.Marshal(BuildSchema(task))
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", task, err)
	}
	url := strings.ToLower(task.String()) + ".json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", task, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", task, err)
	}
	return s, nil
}

// Validate reports every structural and semantic violation of candidate for task.
func (v *Validator) Validate(task constants.Task, candidate []byte) ValidationResult {
	schema, ok := v.schemas[task]
	if !ok {
		return invalid(FieldError{Path: "$", Message: fmt.Sprintf("unknown task %q", task), Kind: KindSchema})
	}

	doc, err := decodeObject(candidate)
	if err != nil {
		return invalid(FieldError{Path: "$", Message: "invalid JSON: " + err.Error(), Kind: KindParse})
	}

	var errs []FieldError
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return invalid(FieldError{Path: "$", Message: err.Error(), Kind: KindSchema})
		}
		errs = append(errs, leafErrors(ve)...)
	}

	switch task {
	case constants.TaskTable:
		errs = append(errs, checkTableRows(doc)...)
	case constants.TaskKnowledgeGraph:
		errs = append(errs, checkGraphReferences(doc)...)
	}

	if len(errs) == 0 {
		return ValidationResult{Valid: true}
	}
	return invalid(errs...)
}

func invalid(errs ...FieldError) ValidationResult {
	errs = dedupe(errs)
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Path != errs[j].Path {
			return errs[i].Path < errs[j].Path
		}
		return errs[i].Message < errs[j].Message
	})
	return ValidationResult{Valid: false, Errors: errs}
}

func dedupe(errs []FieldError) []FieldError {
	seen := make(map[FieldError]struct{}, len(errs))
	out := errs[:0]
	for _, e := range errs {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// decodeObject accepts exactly one JSON object.
func decodeObject(candidate []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(candidate))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("top-level value must be an object")
	}
	return m, nil
}

func leafErrors(ve *jsonschema.ValidationError) []FieldError {
	if len(ve.Causes) == 0 {
		return []FieldError{{Path: pointerToPath(ve.InstanceLocation), Message: ve.Message, Kind: KindSchema}}
	}
	var out []FieldError
	for _, c := range ve.Causes {
		out = append(out, leafErrors(c)...)
	}
	return out
}

// pointerToPath turns "/tables/0/columns" into "tables[0].columns".
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "$"
	}
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func checkTableRows(doc map[string]any) []FieldError {
	tables, _ := doc["tables"].([]any)
	var errs []FieldError
	for ti, t := range tables {
		table, ok := t.(map[string]any)
		if !ok {
			continue
		}
		cols, ok := stringList(table["columns"])
		if !ok {
			continue
		}
		declared := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			declared[c] = struct{}{}
		}

		rows, _ := table["data"].([]any)
		for ri, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			path := fmt.Sprintf("tables[%d].data[%d]", ti, ri)
			for _, c := range cols {
				if _, ok := row[c]; !ok {
					errs = append(errs, FieldError{Path: path, Message: fmt.Sprintf("row is missing column %q", c), Kind: KindSchema})
				}
			}
			for k := range row {
				if _, ok := declared[k]; !ok {
					errs = append(errs, FieldError{Path: path, Message: fmt.Sprintf("row has key %q that is not declared in columns", k), Kind: KindSchema})
				}
			}
		}
	}
	return errs
}

func checkGraphReferences(doc map[string]any) []FieldError {
	names := make(map[string]struct{})
	entities, _ := doc["entities"].([]any)
	for _, e := range entities {
		if ent, ok := e.(map[string]any); ok {
			if name, ok := ent["name"].(string); ok {
				names[name] = struct{}{}
			}
		}
	}

	var errs []FieldError
	rels, _ := doc["relationships"].([]any)
	for i, r := range rels {
		rel, ok := r.(map[string]any)
		if !ok {
			continue
		}
		for _, end := range []string{"source", "target"} {
			ref, ok := rel[end].(string)
			if !ok {
				continue
			}
			if _, known := names[ref]; !known {
				errs = append(errs, FieldError{
					Path:    fmt.Sprintf("relationships[%d].%s", i, end),
					Message: fmt.Sprintf("references unknown entity %q; every relationship endpoint must appear in entities[].name", ref),
					Kind:    KindReferential,
				})
			}
		}
	}
	return errs
}

func stringList(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		s, ok := x.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
