package output

import (
	"encoding/json"

	"github.com/brdforge/brdforge/internal/ailink"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatDocument renders a document result as JSON.
func (f *JSONFormatter) FormatDocument(result *ailink.DocumentResult) (string, error) {
	if result == nil {
		return "null", nil
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
