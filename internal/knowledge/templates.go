package knowledge

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Templates returns the starter knowledge documents.
func Templates() ([]Document, error) {
	var out struct {
		Templates []Document `yaml:"templates"`
	}
	if err := yaml.Unmarshal(templatesYAML, &out); err != nil {
		return nil, fmt.Errorf("parse knowledge templates: %w", err)
	}
	for i, d := range out.Templates {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
	}
	return out.Templates, nil
}
