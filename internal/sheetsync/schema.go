package sheetsync

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// pullSchema is deliberately permissive: the webhook is user-operated and
// rows frequently carry extra or localized columns. It only pins down the
// shapes that would corrupt the document if they arrived wrong.
const pullSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"lastModified": {"type": "number"},
		"leads": {"type": "array", "items": {"type": "object"}},
		"counters": {"type": "array", "items": {"type": "object"}},
		"calendar": {"type": "array", "items": {"type": "object"}},
		"monthNotes": {"type": "array", "items": {"type": "object"}},
		"xp": {"type": "object"},
		"settings": {"type": "object"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pullSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("pull.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("pull.json")
	})
	return schema, schemaErr
}

// ValidatePull checks a fetched body against the pull schema before any of
// it is decoded into internal types.
func ValidatePull(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile pull schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse pull body: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("validate pull body: %w", err)
	}
	return nil
}
