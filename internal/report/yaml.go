package report

import "gopkg.in/yaml.v3"

// YAMLFormatter renders a report as YAML.
type YAMLFormatter struct{}

// Format renders the report as a single YAML document.
func (f *YAMLFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
