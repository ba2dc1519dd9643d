package styles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stylegen/internal/domain"
	"stylegen/internal/domain/jsoncfg"
)

// LookupMode decides what happens when a requested style id is unknown.
type LookupMode string

const (
	LookupStrict  LookupMode = "strict"
	LookupLenient LookupMode = "lenient"
)

// ParseLookupMode defaults to strict for anything it does not recognise.
func ParseLookupMode(raw string) LookupMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(LookupLenient)) {
		return LookupLenient
	}
	return LookupStrict
}

// DefaultStyle is served by lenient lookups for unknown ids.
var DefaultStyle = domain.StyleDefinition{
	ID:          "default",
	Name:        "Professional Digital Art",
	Description: "High quality digital artwork with balanced composition and clean lighting",
}

// Catalog is an immutable id -> definition mapping built once at startup.
type Catalog struct {
	styles map[string]domain.StyleDefinition
	order  []string
	mode   LookupMode
}

// New builds a catalog from already parsed definitions.
func New(defs []domain.StyleDefinition, mode LookupMode) (*Catalog, error) {
	c := &Catalog{
		styles: make(map[string]domain.StyleDefinition, len(defs)),
		mode:   mode,
	}
	for _, def := range defs {
		if _, dup := c.styles[def.ID]; dup {
			return nil, domain.NewConfig(fmt.Sprintf("duplicate style %q", def.ID), nil)
		}
		c.styles[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

// Load reads and parses the style profile file at path. When path is the
// conventional name and missing, the lower-case variant is tried as well.
func Load(path string, mode LookupMode) (*Catalog, error) {
	data, err := readProfiles(path)
	if err != nil {
		return nil, domain.NewConfig("style profiles unreadable", err)
	}
	defs, err := jsoncfg.ParseProfiles(data)
	if err != nil {
		return nil, domain.NewConfig("style profiles malformed", err)
	}
	return New(defs, mode)
}

func readProfiles(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	alt := filepath.Join(filepath.Dir(path), strings.ToLower(filepath.Base(path)))
	if alt == path {
		return nil, err
	}
	if data, altErr := os.ReadFile(alt); altErr == nil {
		return data, nil
	}
	return nil, err
}

// Get returns the definition for id, or a validation error when it is absent.
func (c *Catalog) Get(id string) (domain.StyleDefinition, error) {
	if def, ok := c.styles[id]; ok {
		return def, nil
	}
	return domain.StyleDefinition{}, domain.StyleNotFound(id)
}

// Lookup applies the configured lookup mode on top of Get.
func (c *Catalog) Lookup(id string) (domain.StyleDefinition, error) {
	def, err := c.Get(id)
	if err == nil || c.mode != LookupLenient {
		return def, err
	}
	fallback := DefaultStyle
	fallback.ID = id
	return fallback, nil
}

// IDs lists style ids in file order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// SortedIDs lists style ids alphabetically.
func (c *Catalog) SortedIDs() []string {
	ids := c.IDs()
	sort.Strings(ids)
	return ids
}

func (c *Catalog) Len() int {
	return len(c.styles)
}

func (c *Catalog) Mode() LookupMode {
	return c.mode
}
