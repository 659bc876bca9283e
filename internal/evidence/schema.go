package evidence

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaBaseURL = "https://arbiter.schemas.local/evidence/"
	schemaLookup  = "lookup"
)

type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	names := []string{schemaLookup, string(SectionPolicy)}
	for _, s := range FactSections {
		names = append(names, string(s))
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", name, err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		compiled, err := c.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}

	return v, nil
}

// decode validates raw against the named schema and, only if valid,
// unmarshals it into dst.
func (v *validator) decode(name string, raw json.RawMessage, dst any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema registered for %s", name)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %s: malformed json: %v", ErrSchemaViolation, name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, name, err)
	}

	return nil
}

func (v *validator) validateLookup(l Lookup) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lookup: %w", err)
	}
	var discard Lookup
	return v.decode(schemaLookup, raw, &discard)
}

func schemaURL(name string) string {
	return schemaBaseURL + name + ".schema.json"
}
