package wire

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/erg0nix/bond/internal/codec"
)

// Payload shapes described in schema.json.
const (
	SchemaCallArgs      = "CallArgs"
	SchemaOutputPayload = "OutputPayload"
	SchemaExportName    = "ExportName"
	SchemaExceptPayload = "ExceptPayload"
	SchemaErrorPayload  = "ErrorPayload"
	SchemaStage2        = "Stage2"
)

//go:embed schema.json
var schemaDoc []byte

var (
	schemaOnce     sync.Once
	schemaCompiler *jsonschema.Compiler
	schemaErr      error

	compiledMu sync.Mutex
	compiled   = make(map[string]*jsonschema.Schema)
)

func loadSchema() {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		schemaErr = fmt.Errorf("wire: parse schema: %w", err)
		return
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		schemaErr = fmt.Errorf("wire: add schema resource: %w", err)
		return
	}
	schemaCompiler = c
}

func schemaFor(def string) (*jsonschema.Schema, error) {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return nil, schemaErr
	}

	compiledMu.Lock()
	defer compiledMu.Unlock()

	if sch, ok := compiled[def]; ok {
		return sch, nil
	}

	sch, err := schemaCompiler.Compile("schema.json#/$defs/" + def)
	if err != nil {
		return nil, fmt.Errorf("wire: compile %s: %w", def, err)
	}
	compiled[def] = sch
	return sch, nil
}

// Validate checks a raw JSON payload against one of the schema definitions.
// Malformed or mismatching payloads are reported as serialization errors.
func Validate(def string, payload []byte) error {
	sch, err := schemaFor(def)
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return &codec.SerializationError{Side: codec.SideLocal, Message: "cannot decode payload", Err: err}
	}

	if err := sch.Validate(inst); err != nil {
		return &codec.SerializationError{Side: codec.SideLocal, Message: fmt.Sprintf("payload does not match %s", def), Err: err}
	}
	return nil
}
