package outline

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "docsync://outline.schema.json"

const schemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["_meta", "document"],
  "properties": {
    "_meta": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "document_instruction": {"type": "string"},
        "model": {"type": "string"},
        "max_response_tokens": {"type": "integer", "minimum": 1},
        "temperature": {"type": "number", "minimum": 0, "maximum": 2}
      }
    },
    "document": {
      "type": "object",
      "required": ["title", "output", "sections"],
      "properties": {
        "title": {"type": "string"},
        "output": {"type": "string"},
        "sections": {"type": "array", "items": {"$ref": "#/definitions/section"}}
      }
    },
    "_commit_hashes": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "definitions": {
    "source": {
      "type": "object",
      "required": ["file"],
      "properties": {
        "file": {"type": "string", "minLength": 1},
        "reasoning": {"type": "string"},
        "commit": {"type": "string"}
      }
    },
    "section": {
      "type": "object",
      "required": ["heading"],
      "properties": {
        "heading": {"type": "string", "minLength": 1},
        "level": {"type": "integer", "minimum": 1, "maximum": 6},
        "prompt": {"type": "string"},
        "sources": {"type": "array", "items": {"$ref": "#/definitions/source"}},
        "sections": {"type": "array", "items": {"$ref": "#/definitions/section"}}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(schemaURL, schemaText)
	})
	return schema, schemaErr
}

func validateSchema(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile outline schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("outline is not valid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("outline does not match schema: %w", err)
	}
	return nil
}
