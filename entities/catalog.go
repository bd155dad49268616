package entities

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Catalog quick-add defaults, applied to every line added from the catalog
const (
	CatalogDose      = "1"
	CatalogFrequency = "BID"
	CatalogDuration  = "7 days"
)

// Catalog is the fixed list of medication names offered for quick add
type Catalog []string

// DefaultCatalog returns the medications offered by the demo form
func DefaultCatalog() Catalog {
	return Catalog{
		"Tab. Zerodol-SP",
		"Tab. Pantop-D",
		"Cap. Lyser",
		"Tab. Paracetamol 500mg",
		"Tab. Ibuprofen 400mg",
	}
}

// Contains reports whether name is one of the catalog entries (exact match)
func (c Catalog) Contains(name string) bool {
	return slices.Contains(c, name)
}

// Search returns the catalog entries whose folded form contains the folded
// query, in catalog order. An empty query returns the whole catalog.
func (c Catalog) Search(query string) []string {
	q := fold(query)
	if q == "" {
		return slices.Clone([]string(c))
	}

	var results []string
	for _, name := range c {
		if strings.Contains(fold(name), q) {
			results = append(results, name)
		}
	}
	return results
}

// fold lowercases s and strips combining marks so "Paracétamol" matches "paracetamol"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
