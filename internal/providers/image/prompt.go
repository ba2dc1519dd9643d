package image

import (
	"fmt"
	"strings"
	"unicode"

	"stylegen/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPreamble opens every dynamically composed prompt unless the style
// declares its own.
const DefaultPreamble = "Professional digital artwork, 4K resolution"

// FixedPromptQualifier prefixes fixed prompts for styles that ask for it.
const FixedPromptQualifier = "Professional."

// MissingColor stands in for a color slot the caller left empty.
const MissingColor = "N/A"

// Template names the composition branch chosen for a style.
type Template string

const (
	TemplateDefault Template = "default"
	TemplateColors  Template = "colors"
	TemplateFixed   Template = "fixed"
	TemplateRefine  Template = "refine"
)

// knownLabels render the attribute shapes seen in style profiles.
var knownLabels = map[string]string{
	"designDirectives":      "Design Directives",
	"visualCharacteristics": "Visual Characteristics",
	"visual_elements":       "Visual Elements",
	"aesthetic":             "Aesthetic",
	"colorScheme":           "Color Scheme",
}

// ComposeInput carries everything composition may read.
type ComposeInput struct {
	Style  domain.StyleDefinition
	Prompt string
	Colors [domain.MaxColors]string
	Mode   domain.Mode
}

// Composition is the outcome of composing. For TemplateRefine, Prompt is the
// raw user prompt and Instruction the system message for the refiner; the
// refined text replaces Prompt before dispatch.
type Composition struct {
	Template    Template
	Prompt      string
	Instruction string
	Mode        domain.Mode
}

// SelectTemplate picks the branch for a style. Fixed prompts take precedence
// over refinement, refinement over colors.
func SelectTemplate(style domain.StyleDefinition) Template {
	switch {
	case style.HasFixedPrompt():
		return TemplateFixed
	case style.Refines():
		return TemplateRefine
	case style.UsesColors:
		return TemplateColors
	default:
		return TemplateDefault
	}
}

// Compose builds the final prompt for a request.
func Compose(in ComposeInput) Composition {
	tmpl := SelectTemplate(in.Style)
	out := Composition{Template: tmpl, Mode: in.Mode}
	switch tmpl {
	case TemplateFixed:
		out.Prompt = composeFixed(in.Style)
	case TemplateRefine:
		out.Prompt = strings.TrimSpace(in.Prompt)
		out.Instruction = RefinementInstruction(in.Style)
	case TemplateColors:
		out.Prompt = composeColors(in.Style, in.Prompt, in.Colors)
	default:
		out.Prompt = composeDefault(in.Style, in.Prompt)
	}
	return out
}

// RefinementInstruction returns the system message sent to the refiner.
func RefinementInstruction(style domain.StyleDefinition) string {
	if instr := strings.TrimSpace(style.RefinementInstruction); instr != "" {
		return instr
	}
	if desc := strings.TrimSpace(style.Description); desc != "" {
		return desc
	}
	return fmt.Sprintf("Rewrite the request as a detailed image prompt in the %s style.", style.Name)
}

func composeFixed(style domain.StyleDefinition) string {
	fixed := strings.TrimSpace(style.FixedPrompt)
	if !style.FixedPromptPrefix {
		return fixed
	}
	return fmt.Sprintf("%s Style Profile: %s. %s", FixedPromptQualifier, style.Name, fixed)
}

func composeDefault(style domain.StyleDefinition, prompt string) string {
	lines := styleGuide(style)
	lines = append(lines, depicts(prompt))
	return strings.Join(lines, " ")
}

func composeColors(style domain.StyleDefinition, prompt string, colors [domain.MaxColors]string) string {
	palette := renderColors(style.ColorLabels, colors)
	lines := styleGuide(style)
	lines = append(lines, fmt.Sprintf("Primary colors: %s.", palette))
	lines = append(lines, depicts(prompt))
	lines = append(lines, fmt.Sprintf("Use primary shapes in these colors: %s.", palette))
	return strings.Join(lines, " ")
}

func styleGuide(style domain.StyleDefinition) []string {
	preamble := strings.TrimSuffix(strings.TrimSpace(style.Preamble), ".")
	if preamble == "" {
		preamble = DefaultPreamble
	}
	lines := []string{preamble + ".", fmt.Sprintf("Style Profile: %s.", style.Name)}
	if desc := strings.TrimSuffix(strings.TrimSpace(style.Description), "."); desc != "" {
		lines = append(lines, fmt.Sprintf("Description: %s.", desc))
	}
	for _, attr := range style.Attributes {
		if attr.IsEmpty() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s.", AttributeLabel(attr.Key), renderAttribute(attr, 0)))
	}
	return lines
}

func depicts(prompt string) string {
	return "Please create an image that depicts: " + strings.TrimSpace(prompt)
}

func renderColors(labels []string, colors [domain.MaxColors]string) string {
	parts := make([]string, 0, domain.MaxColors)
	for i, c := range colors {
		c = strings.TrimSpace(c)
		if c == "" {
			c = MissingColor
		}
		if i < len(labels) && labels[i] != "" {
			c = labels[i] + ": " + c
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}

// renderAttribute renders lists joined by ", " and groups as k: v pairs.
// Groups below the top level are wrapped in parentheses.
func renderAttribute(attr domain.Attribute, depth int) string {
	switch attr.Shape {
	case domain.ShapeList:
		items := make([]string, 0, len(attr.Items))
		for _, it := range attr.Items {
			if it = strings.TrimSpace(it); it != "" {
				items = append(items, it)
			}
		}
		return strings.Join(items, ", ")
	case domain.ShapeGroup:
		pairs := make([]string, 0, len(attr.Fields))
		for _, f := range attr.Fields {
			if f.IsEmpty() {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", f.Key, renderAttribute(f, depth+1)))
		}
		out := strings.Join(pairs, ", ")
		if depth > 0 {
			out = "(" + out + ")"
		}
		return out
	default:
		return strings.TrimSpace(attr.Value)
	}
}

// AttributeLabel returns the display label for a top-level attribute key.
// Unknown keys are split on case changes, underscores and dashes, then title-cased.
func AttributeLabel(key string) string {
	if label, ok := knownLabels[key]; ok {
		return label
	}
	return cases.Title(language.English).String(strings.Join(splitKey(key), " "))
}

func splitKey(key string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}
