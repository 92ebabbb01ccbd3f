package report

import "encoding/json"

// JSONFormatter renders a report as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format renders the report as a single JSON document.
func (f *JSONFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = json.Marshal(r)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
