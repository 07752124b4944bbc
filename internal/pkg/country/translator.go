// Package country translates between country names and ISO 3166-1 alpha-2
// codes. Boundary names come from OSM and rarely match ISO spellings exactly,
// so lookups fall back through alias matching, containment, and fuzzy search.
package country

import (
	"sort"
	"strings"

	"github.com/biter777/countries"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Translator resolves country names to codes and back.
type Translator struct {
	byName map[string]countries.CountryCode
	byCode map[string]countries.CountryCode
	names  []string
}

// NewTranslator builds the lookup tables from the embedded ISO 3166 dataset.
func NewTranslator() *Translator {
	t := &Translator{
		byName: make(map[string]countries.CountryCode),
		byCode: make(map[string]countries.CountryCode),
	}
	for _, cc := range countries.All() {
		if !cc.IsValid() {
			continue
		}
		name := cc.String()
		alpha2 := cc.Alpha2()
		if name == "" || alpha2 == "" {
			continue
		}
		t.byName[strings.ToLower(name)] = cc
		t.byCode[alpha2] = cc
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t
}

// CodeForName resolves a country name to its alpha-2 code. Exact matches are
// tried first, then the alias table, then containment, then fuzzy matching,
// mirroring how humans would read an OSM boundary label.
func (t *Translator) CodeForName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	if cc, ok := t.byName[strings.ToLower(name)]; ok {
		return cc.Alpha2(), true
	}

	// ByName knows alpha-2/alpha-3 codes and many alternative spellings.
	if cc := countries.ByName(name); cc.IsValid() {
		return cc.Alpha2(), true
	}

	// Official long forms usually contain the short name ("Kingdom of Spain").
	if code, ok := t.containing(name); ok {
		return code, true
	}

	return t.fuzzy(name)
}

// NameForCode returns the English name for an alpha-2 code.
func (t *Translator) NameForCode(code string) (string, bool) {
	cc, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", false
	}
	return cc.String(), true
}

// containing matches when the label contains a known short name, or the other
// way around. The shortest candidate wins so "Sudan" is not shadowed by
// "South Sudan".
func (t *Translator) containing(name string) (string, bool) {
	lower := strings.ToLower(name)
	best := ""
	for _, candidate := range t.names {
		cl := strings.ToLower(candidate)
		if !strings.Contains(lower, cl) && !strings.Contains(cl, lower) {
			continue
		}
		if best == "" || len(candidate) < len(best) {
			best = candidate
		}
	}
	if best == "" {
		return "", false
	}
	return t.byName[strings.ToLower(best)].Alpha2(), true
}

// fuzzy picks the known name with the smallest edit distance among fuzzy
// matches, tolerating diacritics and truncated labels.
func (t *Translator) fuzzy(name string) (string, bool) {
	ranks := fuzzy.RankFindNormalizedFold(name, t.names)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	return t.byName[strings.ToLower(ranks[0].Target)].Alpha2(), true
}
