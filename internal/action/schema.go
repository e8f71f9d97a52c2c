package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaSeq atomic.Uint64

// Schema is a compiled JSON schema describing an action's arguments.
type Schema struct {
	raw      json.RawMessage
	params   map[string]any
	compiled *validator.Schema
}

// NewSchema compiles a draft 2020-12 JSON schema document.
func NewSchema(raw []byte) (*Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	url := fmt.Sprintf("https://schemas.ton-agent.local/action/%d.schema.json", schemaSeq.Add(1))
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	params := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "$schema" || k == "$id" {
			continue
		}
		params[k] = v
	}
	return &Schema{raw: append(json.RawMessage(nil), raw...), params: params, compiled: compiled}, nil
}

// SchemaFor reflects the argument struct T into a strict schema: unknown
// properties are rejected and fields without omitempty are required.
// Unnamed struct types have no definition to expand and are reflected inline.
func SchemaFor[T any]() (*Schema, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: t.Name() != "",
		Anonymous:      true,
	}
	reflected := r.ReflectFromType(t)
	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return NewSchema(raw)
}

// MustSchemaFor is SchemaFor for package-level declarations.
func MustSchemaFor[T any]() *Schema {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks raw arguments. Empty input is treated as an empty object.
func (s *Schema) Validate(args json.RawMessage) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	var value any
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		value = map[string]any{}
	} else if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return s.compiled.Validate(value)
}

// Parameters returns the schema without meta keywords, ready for tool
// descriptors. The returned map must not be modified.
func (s *Schema) Parameters() map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	return s.params
}

// MarshalJSON emits the original schema document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return s.raw, nil
}
