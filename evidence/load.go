package evidence

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://adesval.schemas.local/evidence.schema.json"

//go:embed schema/evidence.schema.json
var schemaText []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func evidenceSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		c.AssertContent = true
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaText)); err != nil {
			schemaErr = fmt.Errorf("evidence schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("evidence schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Load decodes JSON diagnostic data. The input is validated against the
// embedded evidence schema and checked for document-level consistency;
// failures are reported as *MalformedEvidenceError.
func Load(r io.Reader) (*DiagnosticData, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}

	schema, err := evidenceSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, &MalformedEvidenceError{Message: "invalid JSON", Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &MalformedEvidenceError{Message: "schema validation failed", Err: err}
	}

	data := &DiagnosticData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, &MalformedEvidenceError{Message: "failed to decode evidence", Err: err}
	}
	if err := data.CheckDocument(); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadFile reads diagnostic data from a JSON file.
func LoadFile(path string) (*DiagnosticData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
