package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes one JSON document per call. HTML escaping is off so
// DSN query strings and redis URLs print as configured.
type JSONFormatter struct {
	// Compact writes the document on a single line.
	Compact bool
}

func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !f.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}
