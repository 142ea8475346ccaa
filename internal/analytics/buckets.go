package analytics

import (
	"sort"
	"strings"
)

// Dimension is one requested breakdown axis with its resolved, ordered
// value domain.
type Dimension struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Bucket is one cell of the output: one combination of dimension
// values, in product-enumeration order. Values aligns with the
// dimension order of the index.
type Bucket struct {
	Position int      `json:"position"`
	Values   []string `json:"values"`
	Count    int64    `json:"count"`
}

// BucketIndex holds the full Cartesian product of the resolved domains
// plus a normalized-set lookup. Descriptor sets arrive with their
// tokens in record order and with some dimensions possibly absent, so
// matching is by unordered-set equality: a canonical sorted key rather
// than a positional tuple.
type BucketIndex struct {
	Dimensions []Dimension
	Buckets    []Bucket
	byKey      map[string]int
}

// BuildBucketIndex enumerates every combination of domain values. With
// no dimensions the product is a single empty combination, which gives
// plain totals a single implicit bucket.
func BuildBucketIndex(dims []Dimension) *BucketIndex {
	ix := &BucketIndex{
		Dimensions: dims,
		byKey:      map[string]int{},
	}
	combos := [][]string{{}}
	for _, d := range dims {
		var next [][]string
		for _, combo := range combos {
			for _, v := range d.Values {
				extended := make([]string, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, v))
			}
		}
		combos = next
	}
	for i, combo := range combos {
		ix.Buckets = append(ix.Buckets, Bucket{Position: i, Values: combo})
		ix.byKey[canonicalKey(combo)] = i
	}
	return ix
}

// Match returns the bucket position for a descriptor set, if any. A
// set with no corresponding combination represents a value outside the
// requested breakdown's domain and contributes nowhere.
func (ix *BucketIndex) Match(tokens []string) (int, bool) {
	pos, ok := ix.byKey[canonicalKey(tokens)]
	return pos, ok
}

// Add accumulates an amount into the matched bucket and reports
// whether anything matched.
func (ix *BucketIndex) Add(tokens []string, amount int64) bool {
	pos, ok := ix.Match(tokens)
	if !ok {
		return false
	}
	ix.Buckets[pos].Count += amount
	return true
}

func canonicalKey(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}
