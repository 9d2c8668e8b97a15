package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
)

// Validator checks a task's structured_inputs against the JSON schema of its
// category. Categories without a schema accept any JSON object.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator loads every *.json file in schemaDir. The file name, minus
// extension and an optional ".v1" suffix, is the category it applies to.
// An empty schemaDir yields a validator that only checks the object shape.
func NewValidator(schemaDir string) (*Validator, error) {
	schemas := make(map[string]*jsonschema.Schema)
	if schemaDir == "" {
		return &Validator{schemas: schemas}, nil
	}
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		category := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		category = strings.ToLower(strings.TrimSuffix(category, ".v1"))
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://inaiurai.dev/schemas/" + category + ".structured_inputs"
		schemas[category], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", category, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Categories lists the categories that carry a schema.
func (v *Validator) Categories() []string {
	out := make([]string, 0, len(v.schemas))
	for c := range v.schemas {
		out = append(out, c)
	}
	return out
}

// ValidateStructuredInputs is a hard reject: malformed or non-conforming
// inputs fail with VALIDATION_ERROR and the schema's complaint as details.
func (v *Validator) ValidateStructuredInputs(category string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Validation("structured_inputs is not valid JSON")
	}
	if _, ok := doc.(map[string]any); !ok {
		return apperr.Validation("structured_inputs must be an object")
	}
	schema, ok := v.schemas[strings.ToLower(category)]
	if !ok {
		return nil
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Validation("structured_inputs do not match the %s schema", category).
			WithDetails(map[string]string{"structured_inputs": err.Error()})
	}
	return nil
}
