package types

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// fieldWire is the persisted shape of a FieldDefinition. Constraints are
// decoded in a second pass once the type is known.
type fieldWire struct {
	Name        string          `json:"name,omitempty"`
	Type        FieldType       `json:"type"`
	Required    bool            `json:"required,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
	Metadata    FieldMetadata   `json:"metadata,omitzero"`
}

// MarshalJSON encodes the definition with its type-specific constraints.
func (f FieldDefinition) MarshalJSON() ([]byte, error) {
	w := fieldWire{Name: f.Name, Type: f.Type, Required: f.Required, Metadata: f.Metadata}
	if f.Constraints != nil {
		raw, err := json.Marshal(f.Constraints)
		if err != nil {
			return nil, fmt.Errorf("marshal constraints of %q: %w", f.Name, err)
		}
		if string(raw) != "{}" {
			w.Constraints = raw
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the type first, then the matching constraint payload.
func (f *FieldDefinition) UnmarshalJSON(data []byte) error {
	var w fieldWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c := DefaultConstraints(w.Type)
	if len(w.Constraints) > 0 && w.Type.Valid() {
		if err := json.Unmarshal(w.Constraints, c); err != nil {
			return fmt.Errorf("decode %s constraints of %q: %w", w.Type, w.Name, err)
		}
	}
	*f = FieldDefinition{Name: w.Name, Type: w.Type, Required: w.Required, Constraints: c, Metadata: w.Metadata}
	return nil
}

// fieldYAML mirrors fieldWire for YAML documents such as the template
// catalog.
type fieldYAML struct {
	Name        string        `yaml:"name,omitempty"`
	Type        FieldType     `yaml:"type"`
	Required    bool          `yaml:"required,omitempty"`
	Constraints yaml.Node     `yaml:"constraints,omitempty"`
	Metadata    FieldMetadata `yaml:"metadata,omitempty"`
}

// UnmarshalYAML decodes a field definition from a YAML mapping.
func (f *FieldDefinition) UnmarshalYAML(value *yaml.Node) error {
	var w fieldYAML
	if err := value.Decode(&w); err != nil {
		return err
	}
	c := DefaultConstraints(w.Type)
	if w.Constraints.Kind != 0 && w.Type.Valid() {
		if err := w.Constraints.Decode(c); err != nil {
			return fmt.Errorf("line %d: decode %s constraints: %w", w.Constraints.Line, w.Type, err)
		}
	}
	*f = FieldDefinition{Name: w.Name, Type: w.Type, Required: w.Required, Constraints: c, Metadata: w.Metadata}
	return nil
}

// MarshalYAML encodes the definition as a YAML mapping.
func (f FieldDefinition) MarshalYAML() (any, error) {
	out := map[string]any{"type": string(f.Type)}
	if f.Name != "" {
		out["name"] = f.Name
	}
	if f.Required {
		out["required"] = true
	}
	if f.Constraints != nil {
		var node yaml.Node
		if err := node.Encode(f.Constraints); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 {
			out["constraints"] = &node
		}
	}
	if f.Metadata != (FieldMetadata{}) {
		out["metadata"] = f.Metadata
	}
	return out, nil
}
