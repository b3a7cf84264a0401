package cli

import (
	"encoding/json"
	"errors"
	"fmt"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so scripted callers always get machine-readable
// failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		line := map[string]string{"type": "error", "code": code, "message": message}
		if len(hint) > 0 && hint[0] != "" {
			line["hint"] = hint[0]
		}
		b, _ := json.Marshal(line)
		fmt.Fprintln(globals.Stdout, string(b))
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}
