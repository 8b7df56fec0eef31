package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
)

// Violation records a model entry that did not match EntryJSONSchema. The
// entry is still normalized and kept; the violation tells which values were
// coerced or dropped on the way.
type Violation struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail"`
}

// EntryJSONSchema describes one expanded model entry before normalization.
// Taxonomy fields use custom formats so that compact codes and synonyms
// pass while values no canonicalizer understands are reported.
func EntryJSONSchema() map[string]any {
	text := map[string]any{"type": []any{"string", "null"}}
	listOrText := map[string]any{"type": []any{"string", "array", "null"}}
	taxonomy := func(format string) map[string]any {
		return map[string]any{"type": []any{"string", "null"}, "format": format}
	}
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]any{
			"semester":            taxonomy("semester"),
			"category_main":       taxonomy("category-main"),
			"changche_type":       taxonomy("changche-type"),
			"changche_sub":        text,
			"gyogwa_type":         taxonomy("gyogwa-type"),
			"gyogwa_sub":          text,
			"gyogwa_subject_name": text,
			"bongsa_hours": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "number", "minimum": 0},
					map[string]any{"type": "string", "format": "hours"},
					map[string]any{"type": "null"},
				},
			},
			"title":                 text,
			"activity_content":      text,
			"conclusion":            text,
			"research_plan":         text,
			"reading_activities":    listOrText,
			"evaluation_competency": listOrText,
		},
	}
}

// taxonomyFormats accept "" as absent and otherwise defer to the constants
// canonicalizers. Non-strings are left to the type keyword.
var taxonomyFormats = map[string]func(string) bool{
	"semester": func(s string) bool {
		_, ok := constants.CanonicalSemester(s)
		return ok
	},
	"category-main": func(s string) bool {
		_, ok := constants.CanonicalCategory(s)
		return ok
	},
	"changche-type": func(s string) bool {
		_, ok := constants.CanonicalChangcheType(s)
		return ok
	},
	"gyogwa-type": func(s string) bool {
		_, ok := constants.CanonicalGyogwaType(s)
		return ok
	},
	"hours": func(s string) bool {
		f := asOptFloat(s)
		return f != nil && *f >= 0
	},
}

var (
	entrySchemaOnce sync.Once
	entrySchema     *jsonschema.Schema
	entrySchemaErr  error
)

func compiledEntrySchema() (*jsonschema.Schema, error) {
	entrySchemaOnce.Do(func() {
		entrySchema, entrySchemaErr = compileSchema(EntryJSONSchema())
	})
	return entrySchema, entrySchemaErr
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	for name, ok := range taxonomyFormats {
		ok := ok
		compiler.Formats[name] = func(v any) bool {
			s, isStr := v.(string)
			if !isStr || strings.TrimSpace(s) == "" {
				return true
			}
			return ok(s)
		}
	}
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateEntry checks one expanded model object against EntryJSONSchema.
// m must come from encoding/json so numbers are float64.
func ValidateEntry(m map[string]any) error {
	schema, err := compiledEntrySchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(m); err != nil {
		return fmt.Errorf("entry does not match schema: %s", violationDetail(err))
	}
	return nil
}

// violationDetail flattens a jsonschema error tree into "field: message" pairs.
func violationDetail(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var parts []string
	for _, u := range ve.BasicOutput().Errors {
		if u.InstanceLocation == "" || strings.HasPrefix(u.Error, "doesn't validate with") {
			continue
		}
		parts = append(parts, strings.TrimPrefix(u.InstanceLocation, "/")+": "+u.Error)
	}
	if len(parts) == 0 {
		return ve.Error()
	}
	return strings.Join(parts, "; ")
}
