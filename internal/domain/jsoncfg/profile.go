package jsoncfg

import (
	"errors"
	"fmt"
	"strings"

	"stylegen/internal/domain"

	"github.com/tidwall/gjson"
)

// Reserved keys of a style profile entry. Every other key is an attribute.
const (
	KeyName                  = "name"
	KeyDescription           = "description"
	KeyPreamble              = "preamble"
	KeyFixedPrompt           = "fixedPrompt"
	KeyFixedPromptPrefix     = "fixedPromptPrefix"
	KeyRefine                = "refine"
	KeyRefinementInstruction = "refinementInstruction"
	KeyRefinementRequired    = "refinementRequired"
	KeyUsesColors            = "usesColors"
	KeyColorLabels           = "colorLabels"
)

var reservedKeys = map[string]struct{}{
	KeyName:                  {},
	KeyDescription:           {},
	KeyPreamble:              {},
	KeyFixedPrompt:           {},
	KeyFixedPromptPrefix:     {},
	KeyRefine:                {},
	KeyRefinementInstruction: {},
	KeyRefinementRequired:    {},
	KeyUsesColors:            {},
	KeyColorLabels:           {},
}

// maxGroupDepth limits how deep objects are kept as groups; anything deeper
// is carried as raw JSON text.
const maxGroupDepth = 2

var (
	ErrInvalidJSON      = errors.New("invalid json")
	ErrNotObject        = errors.New("top level must be an object")
	ErrMissingName      = errors.New("name is required")
	ErrConflictingModes = errors.New("fixedPrompt and refine are mutually exclusive")
)

// ParseProfiles decodes a style profile document. Attributes keep the order in
// which they appear in the file, which drives prompt rendering order.
func ParseProfiles(data []byte) ([]domain.StyleDefinition, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrNotObject
	}
	var (
		out     []domain.StyleDefinition
		loopErr error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		def, err := parseProfile(key.String(), value)
		if err != nil {
			loopErr = fmt.Errorf("style %q: %w", key.String(), err)
			return false
		}
		out = append(out, def)
		return true
	})
	if loopErr != nil {
		return nil, loopErr
	}
	return out, nil
}

func parseProfile(id string, v gjson.Result) (domain.StyleDefinition, error) {
	def := domain.StyleDefinition{ID: id}
	if !v.IsObject() {
		return def, ErrNotObject
	}
	def.Name = strings.TrimSpace(v.Get(KeyName).String())
	def.Description = strings.TrimSpace(v.Get(KeyDescription).String())
	def.Preamble = strings.TrimSpace(v.Get(KeyPreamble).String())
	def.FixedPrompt = strings.TrimSpace(v.Get(KeyFixedPrompt).String())
	def.FixedPromptPrefix = v.Get(KeyFixedPromptPrefix).Bool()
	def.Refine = v.Get(KeyRefine).Bool()
	def.RefinementInstruction = strings.TrimSpace(v.Get(KeyRefinementInstruction).String())
	def.RefinementRequired = v.Get(KeyRefinementRequired).Bool()
	def.UsesColors = v.Get(KeyUsesColors).Bool()
	for _, label := range v.Get(KeyColorLabels).Array() {
		if len(def.ColorLabels) == domain.MaxColors {
			break
		}
		def.ColorLabels = append(def.ColorLabels, strings.TrimSpace(label.String()))
	}
	if len(def.ColorLabels) > 0 {
		def.UsesColors = true
	}

	v.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, reserved := reservedKeys[k]; reserved {
			return true
		}
		def.Attributes = append(def.Attributes, parseAttribute(k, value, 1))
		return true
	})

	if err := Validate(def); err != nil {
		return def, err
	}
	return def, nil
}

func parseAttribute(key string, v gjson.Result, depth int) domain.Attribute {
	switch {
	case v.IsObject() && depth <= maxGroupDepth:
		var fields []domain.Attribute
		v.ForEach(func(k, fv gjson.Result) bool {
			fields = append(fields, parseAttribute(k.String(), fv, depth+1))
			return true
		})
		return domain.Group(key, fields...)
	case v.IsArray():
		var items []string
		for _, it := range v.Array() {
			items = append(items, scalarText(it))
		}
		return domain.List(key, items...)
	default:
		return domain.Scalar(key, scalarText(v))
	}
}

func scalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return v.String()
	case gjson.Null:
		return ""
	default:
		return strings.TrimSpace(v.Raw)
	}
}

// Validate checks a single definition against the loader contract.
func Validate(def domain.StyleDefinition) error {
	if def.Name == "" {
		return ErrMissingName
	}
	if def.Refine && def.HasFixedPrompt() {
		return ErrConflictingModes
	}
	return nil
}
