package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed header_schema.json
var headerSchemaJSON []byte

var (
	headerSchemaOnce sync.Once
	headerSchema     *jsonschema.Schema
	headerSchemaErr  error
)

// ValidateHeaderJSON validates a raw header document against the embedded
// header schema before it is decoded into Header. This rejects malformed
// files with a precise message instead of a zero-valued struct.
func ValidateHeaderJSON(raw []byte) error {
	headerSchemaOnce.Do(func() {
		headerSchema, headerSchemaErr = jsonschema.CompileString("header_schema.json", string(headerSchemaJSON))
	})
	if headerSchemaErr != nil {
		return fmt.Errorf("failed to compile header schema: %w", headerSchemaErr)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("header is not valid JSON: %w", err)
	}

	if err := headerSchema.Validate(doc); err != nil {
		return fmt.Errorf("header validation failed: %w", err)
	}
	return nil
}
