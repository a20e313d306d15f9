package taxonomy

import (
	"sort"
	"sync"
)

// canonicalCategories are the top-level arXiv subject domains.
var canonicalCategories = map[string]struct{}{
	"cs":       {},
	"econ":     {},
	"eess":     {},
	"math":     {},
	"astro-ph": {},
	"cond-mat": {},
	"gr-qc":    {},
	"hep":      {},
	"math-ph":  {},
	"nucl":     {},
	"quant-ph": {},
	"physics":  {},
	"q-bio":    {},
	"q-fin":    {},
	"stat":     {},
	"nlin":     {},
}

// legacyAliases maps pre-2007 category identifiers to their current domain.
var legacyAliases = map[string]string{
	"acc-phys": "physics",
	"adap-org": "nlin",
	"alg-geom": "math",
	"ao-sci":   "physics",
	"atom-ph":  "physics",
	"bayes-an": "stat",
	"chao-dyn": "nlin",
	"chem-ph":  "physics",
	"cmp-lg":   "cs",
	"comp-gas": "physics",
	"dg-ga":    "math",
	"funct-an": "math",
	"mtrl-th":  "cond-mat",
	"patt-sol": "nlin",
	"plasm-ph": "physics",
	"q-alg":    "quant-ph",
	"solv-int": "nlin",
	"supr-con": "cond-mat",
}

// Normalizer maps raw category tokens onto the canonical taxonomy. Results are
// memoized per token; the token space is bounded by the category vocabulary,
// so the memo map never grows meaningfully.
type Normalizer struct {
	mapLegacy bool
	ordered   []string

	mu   sync.Mutex
	memo map[string]string
}

// NewNormalizer builds a Normalizer. mapLegacy controls whether the pre-2007
// alias table is consulted; deployments that have fully reprocessed the
// old-form identifiers can turn it off.
func NewNormalizer(mapLegacy bool) *Normalizer {
	ordered := make([]string, 0, len(canonicalCategories))
	for c := range canonicalCategories {
		ordered = append(ordered, c)
	}
	// Longest domain first, so "math-ph.X" resolves to math-ph, not math.
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})
	return &Normalizer{
		mapLegacy: mapLegacy,
		ordered:   ordered,
		memo:      make(map[string]string, 256),
	}
}

// Normalize returns the canonical domain for token. Canonical tokens pass
// through unchanged; legacy aliases map to their current domain; dotted or
// hyphenated sub-categories map to the canonical parent. Unrecognized tokens
// are returned verbatim, so callers must tolerate unknown categories.
func (n *Normalizer) Normalize(token string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := n.memo[token]; ok {
		return v
	}
	v := n.resolve(token)
	n.memo[token] = v
	return v
}

func (n *Normalizer) resolve(token string) string {
	if _, ok := canonicalCategories[token]; ok {
		return token
	}
	if n.mapLegacy {
		if mapped, ok := legacyAliases[token]; ok {
			return mapped
		}
	}
	for _, domain := range n.ordered {
		if len(token) > len(domain) && token[:len(domain)] == domain {
			switch token[len(domain)] {
			case '.', '-':
				return domain
			}
		}
	}
	return token
}

// IsCanonical reports whether token is one of the top-level domains.
func IsCanonical(token string) bool {
	_, ok := canonicalCategories[token]
	return ok
}
