package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// schemaTag versions the JSON envelope for scripted consumers.
const schemaTag = "tern/v1"

type envelope struct {
	Schema string `json:"schema"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func resultEnvelope(result any) envelope {
	return envelope{Schema: schemaTag, OK: true, Result: result}
}

func errorEnvelope(err error) envelope {
	return envelope{Schema: schemaTag, OK: false, Error: err.Error()}
}

// printResult emits the success envelope when --json is set; otherwise the
// caller handles human-readable output and should not call this.
func printResult(result any) error {
	return printJSON(resultEnvelope(result))
}

// printJSON encodes v as indented JSON to stdout.
func printJSON(v any) error {
	return fprintJSON(os.Stdout, v)
}

// fprintJSON encodes v as indented JSON to w.
func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
