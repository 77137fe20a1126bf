// Package sections defines the reviewable sections of each item kind.
package sections

import (
	"slices"
	"sort"

	"github.com/danieldreier/mcp-study/internal/review"
)

// Built-in item kinds.
const (
	KindDisease = "disease"
	KindDrug    = "drug"
	KindConcept = "concept"
)

var defaultDefs = map[string][]review.SectionDef{
	KindDisease: {
		{Key: "etiology", Label: "Etiology"},
		{Key: "pathophys", Label: "Pathophys"},
		{Key: "clinical", Label: "Clinical Presentation"},
		{Key: "diagnosis", Label: "Diagnosis"},
		{Key: "treatment", Label: "Treatment"},
		{Key: "complications", Label: "Complications"},
		{Key: "mnemonic", Label: "Mnemonic"},
	},
	KindDrug: {
		{Key: "moa", Label: "Mechanism"},
		{Key: "uses", Label: "Uses"},
		{Key: "sideEffects", Label: "Side Effects"},
		{Key: "contraindications", Label: "Contraindications"},
		{Key: "mnemonic", Label: "Mnemonic"},
	},
	KindConcept: {
		{Key: "definition", Label: "Definition"},
		{Key: "mechanism", Label: "Mechanism"},
		{Key: "clinicalRelevance", Label: "Clinical Relevance"},
		{Key: "example", Label: "Example"},
		{Key: "mnemonic", Label: "Mnemonic"},
	},
}

// Catalog is an immutable lookup of section definitions by item kind.
type Catalog struct {
	defs  map[string][]review.SectionDef
	kinds []string
}

var _ review.SectionSource = (*Catalog)(nil)

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(nil)
}

// NewCatalog returns the built-in catalog with overrides applied. An override
// replaces the whole definition list of its kind; entries with an empty key
// are dropped and a missing label falls back to the key.
func NewCatalog(overrides map[string][]review.SectionDef) *Catalog {
	defs := make(map[string][]review.SectionDef, len(defaultDefs)+len(overrides))
	for kind, list := range defaultDefs {
		defs[kind] = slices.Clone(list)
	}
	for kind, list := range overrides {
		if kind == "" {
			continue
		}
		cleaned := make([]review.SectionDef, 0, len(list))
		for _, def := range list {
			if def.Key == "" {
				continue
			}
			if def.Label == "" {
				def.Label = def.Key
			}
			cleaned = append(cleaned, def)
		}
		defs[kind] = cleaned
	}

	kinds := make([]string, 0, len(defs))
	for kind := range defs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return &Catalog{defs: defs, kinds: kinds}
}

// SectionsForKind returns the ordered definitions for kind, or nil for an
// unknown kind.
func (c *Catalog) SectionsForKind(kind string) []review.SectionDef {
	return slices.Clone(c.defs[kind])
}

// Kinds lists the known item kinds in sorted order.
func (c *Catalog) Kinds() []string {
	return slices.Clone(c.kinds)
}

// Label returns the display label of a section, or "" when unknown.
func (c *Catalog) Label(kind, key string) string {
	for _, def := range c.defs[kind] {
		if def.Key == key {
			return def.Label
		}
	}
	return ""
}
