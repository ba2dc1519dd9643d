package domain

import "strings"

// AttributeShape tags the variant held by an Attribute.
type AttributeShape int

const (
	ShapeScalar AttributeShape = iota
	ShapeList
	ShapeGroup
)

// Attribute is one entry of a style's attribute bag. Exactly one of Value,
// Items or Fields is meaningful, selected by Shape.
type Attribute struct {
	Key    string
	Shape  AttributeShape
	Value  string
	Items  []string
	Fields []Attribute
}

// Scalar builds a scalar attribute.
func Scalar(key, value string) Attribute {
	return Attribute{Key: key, Shape: ShapeScalar, Value: value}
}

// List builds a list attribute.
func List(key string, items ...string) Attribute {
	return Attribute{Key: key, Shape: ShapeList, Items: items}
}

// Group builds a nested attribute.
func Group(key string, fields ...Attribute) Attribute {
	return Attribute{Key: key, Shape: ShapeGroup, Fields: fields}
}

// IsEmpty reports whether the attribute would render nothing.
func (a Attribute) IsEmpty() bool {
	switch a.Shape {
	case ShapeList:
		for _, it := range a.Items {
			if strings.TrimSpace(it) != "" {
				return false
			}
		}
		return true
	case ShapeGroup:
		for _, f := range a.Fields {
			if !f.IsEmpty() {
				return false
			}
		}
		return true
	default:
		return strings.TrimSpace(a.Value) == ""
	}
}

// StyleDefinition is immutable once loaded.
type StyleDefinition struct {
	ID          string
	Name        string
	Description string
	Preamble    string
	Attributes  []Attribute

	// FixedPrompt replaces dynamic composition when set.
	FixedPrompt       string
	FixedPromptPrefix bool

	// Refine sends the raw prompt through the text-completion provider with
	// RefinementInstruction (or Description) as the system message.
	Refine                bool
	RefinementInstruction string
	RefinementRequired    bool

	UsesColors  bool
	ColorLabels []string
}

// HasFixedPrompt reports whether composition ignores the user prompt.
func (s StyleDefinition) HasFixedPrompt() bool {
	return strings.TrimSpace(s.FixedPrompt) != ""
}

// Refines reports whether the refinement pipeline applies. A fixed prompt
// always wins over refinement.
func (s StyleDefinition) Refines() bool {
	return s.Refine && !s.HasFixedPrompt()
}

// Attribute returns the attribute stored under key.
func (s StyleDefinition) Attribute(key string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return Attribute{}, false
}
