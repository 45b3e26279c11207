// Package similarity holds the normalized [0,1] similarity measures used by
// duplicate detection: strings (supplier names, line descriptions), amounts,
// ordered numeric lists and code sets. All functions are pure.
package similarity

import (
	"fmt"
	"math"
	"strings"

	"github.com/xrash/smetrics"
)

// epsilon guards amount similarity against division by zero
const epsilon = 1e-9

// Weights blends the three string signals. They encode a tunable policy and
// must sum to one.
type Weights struct {
	Edit  float64 `yaml:"edit" mapstructure:"edit" json:"edit"`    // normalized Levenshtein
	Name  float64 `yaml:"name" mapstructure:"name" json:"name"`    // Jaro-Winkler
	Token float64 `yaml:"token" mapstructure:"token" json:"token"` // token-set Jaccard
}

// DefaultWeights returns the 0.3/0.4/0.3 blend
func DefaultWeights() Weights {
	return Weights{Edit: 0.3, Name: 0.4, Token: 0.3}
}

// Validate checks that weights are non-negative and sum to one
func (w Weights) Validate() error {
	if w.Edit < 0 || w.Name < 0 || w.Token < 0 {
		return fmt.Errorf("similarity weights must be non-negative (got edit=%.2f name=%.2f token=%.2f)", w.Edit, w.Name, w.Token)
	}
	if sum := w.Edit + w.Name + w.Token; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("similarity weights must sum to 1.0 (got %.4f)", sum)
	}
	return nil
}

// String scores two strings with the default weights
func String(a, b string) float64 {
	return StringWith(DefaultWeights(), a, b)
}

// StringWith scores two strings after trimming, lowercasing and collapsing
// whitespace. An empty side scores 0.
func StringWith(w Weights, a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// fixed argument order keeps the blend exactly symmetric
	if b < a {
		a, b = b, a
	}
	score := w.Edit*levenshteinSimilarity(a, b) +
		w.Name*jaroWinkler(a, b) +
		w.Token*tokenJaccard(a, b)
	return clamp(score)
}

// Normalize lowercases s and collapses runs of whitespace
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Amount scores two amounts by relative difference. Two zeros are identical.
func Amount(x, y float64) float64 {
	if x == 0 && y == 0 {
		return 1
	}
	denom := math.Max(math.Max(math.Abs(x), math.Abs(y)), epsilon)
	return clamp(1 - math.Abs(x-y)/denom)
}

// List scores two numeric sequences. Equal lengths pair by position; otherwise
// each element of the shorter list takes its best unused partner. The sum of
// pair scores is divided by the longer length so unpaired elements count as 0.
func List(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) == len(b) {
		total := 0.0
		for i := range a {
			total += Amount(a[i], b[i])
		}
		return clamp(total / float64(len(a)))
	}

	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	used := make([]bool, len(long))
	total := 0.0
	for _, x := range short {
		best, bestIdx := -1.0, -1
		for j, y := range long {
			if used[j] {
				continue
			}
			if s := Amount(x, y); s > best {
				best, bestIdx = s, j
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			total += best
		}
	}
	return clamp(total / float64(len(long)))
}

// Jaccard compares two code sets. Codes are trimmed and upper-cased; blanks
// are dropped. An empty side scores 0.
func Jaccard(a, b []string) float64 {
	setA, setB := codeSet(a), codeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for code := range setA {
		if _, ok := setB[code]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Intersection returns the codes present in both sets, in the order of a
func Intersection(a, b []string) []string {
	setB := codeSet(b)
	seen := make(map[string]struct{})
	var out []string
	for _, code := range a {
		c := strings.ToUpper(strings.TrimSpace(code))
		if c == "" {
			continue
		}
		if _, ok := setB[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func codeSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if c := strings.ToUpper(strings.TrimSpace(code)); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// levenshteinSimilarity normalizes the unit-cost edit distance by the longer
// string's byte length
func levenshteinSimilarity(a, b string) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	return smetrics.WagnerFischer(a, b, 1, 1, 1)
}

// jaroWinkler boosts Jaro scores above 0.7 for a shared prefix of up to four
// characters
func jaroWinkler(a, b string) float64 {
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

func tokenJaccard(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, tok := range strings.Fields(a) {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, tok := range strings.Fields(b) {
		setB[tok] = struct{}{}
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
