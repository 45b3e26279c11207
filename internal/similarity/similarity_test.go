package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrash/smetrics"
)

func TestString_Properties(t *testing.T) {
	pairs := [][2]string{
		{"Acme Corp", "ACME Corporation"},
		{"Tata Steel Ltd", "Tata Steels Limited"},
		{"martha", "marhta"},
		{"Reliance Industries", "Infosys"},
		{"a", "b"},
		{"Bharat Electronics", "  bharat   electronics "},
	}

	for _, p := range pairs {
		ab := String(p[0], p[1])
		ba := String(p[1], p[0])
		assert.Equal(t, ab, ba, "symmetry for %q / %q", p[0], p[1])
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
		assert.Equal(t, 1.0, String(p[0], p[0]))
		assert.Equal(t, 0.0, String("", p[0]))
		assert.Equal(t, 0.0, String(p[0], "   "))
	}
}

func TestString_Normalization(t *testing.T) {
	assert.Equal(t, 1.0, String("Acme  Corp", " acme corp"))
	assert.Equal(t, "acme corp", Normalize("  ACME\tCorp "))
}

func TestString_Ordering(t *testing.T) {
	near := String("Acme Industries Pvt Ltd", "Acme Industries Pvt. Ltd")
	far := String("Acme Industries Pvt Ltd", "Zenith Traders")

	assert.Greater(t, near, 0.8)
	assert.Less(t, far, 0.5)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 4, levenshtein("", "four"))
	assert.InDelta(t, 1-3.0/7.0, levenshteinSimilarity("kitten", "sitting"), 1e-9)
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 0.9444, smetrics.Jaro("martha", "marhta"), 1e-4)
	assert.InDelta(t, 0.9611, jaroWinkler("martha", "marhta"), 1e-4)
	assert.Equal(t, 0.0, jaroWinkler("abc", "xyz"))
	assert.InDelta(t, smetrics.Jaro("abcdef", "abzzzz"), jaroWinkler("abcdef", "abzzzz"), 1e-12, "no prefix boost below 0.7")
}

func TestTokenJaccard(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, tokenJaccard("acme corp", "acme corp."), 1e-9)
	assert.Equal(t, 1.0, tokenJaccard("b a", "a b"))
}

func TestStringWith_CustomWeights(t *testing.T) {
	editOnly := Weights{Edit: 1}
	require.NoError(t, editOnly.Validate())

	assert.InDelta(t, 1-3.0/7.0, StringWith(editOnly, "kitten", "sitting"), 1e-9)
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name        string
		weights     Weights
		expectError bool
	}{
		{name: "default", weights: DefaultWeights()},
		{name: "negative", weights: Weights{Edit: -0.1, Name: 0.6, Token: 0.5}, expectError: true},
		{name: "does not sum to one", weights: Weights{Edit: 0.3, Name: 0.3, Token: 0.3}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float64
		expected float64
	}{
		{name: "both zero", x: 0, y: 0, expected: 1},
		{name: "equal", x: 1180, y: 1180, expected: 1},
		{name: "one percent", x: 100, y: 99, expected: 0.99},
		{name: "half", x: 100, y: 200, expected: 0.5},
		{name: "zero vs value", x: 0, y: 50, expected: 0},
		{name: "opposite signs clamp", x: 100, y: -100, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Amount(tt.x, tt.y), 1e-12)
			assert.Equal(t, Amount(tt.x, tt.y), Amount(tt.y, tt.x))
		})
	}
}

func TestAmount_OnePercentIsNotAboveThreshold(t *testing.T) {
	assert.False(t, Amount(100, 99) > 0.99)
	assert.True(t, Amount(100, 99.5) > 0.99)
}

func TestList(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{name: "identical", a: []float64{100, 200}, b: []float64{100, 200}, expected: 1},
		{name: "positional when same length", a: []float64{100, 200}, b: []float64{200, 100}, expected: 0.5},
		{name: "greedy when lengths differ", a: []float64{100, 200}, b: []float64{200}, expected: 0.5},
		{name: "greedy picks best partner", a: []float64{50, 100, 200}, b: []float64{200, 100}, expected: 2.0 / 3.0},
		{name: "empty vs non-empty", a: nil, b: []float64{100}, expected: 0},
		{name: "both empty", a: nil, b: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, List(tt.a, tt.b), 1e-9)
			assert.InDelta(t, List(tt.a, tt.b), List(tt.b, tt.a), 1e-12)
		})
	}
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard([]string{"8471", "8528"}, []string{" 8528", "8471 ", "8471"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"8471", "8528"}, []string{"8471", "9403"}), 1e-9)
	assert.Equal(t, 0.0, Jaccard(nil, []string{"8471"}))
	assert.Equal(t, 0.0, Jaccard([]string{" "}, []string{""}))
	assert.Equal(t, 1.0, Jaccard([]string{"ab12"}, []string{"AB12"}))
}

func TestIntersection(t *testing.T) {
	got := Intersection([]string{"8471", "9403", "8471", "8528"}, []string{"8528", "8471"})
	assert.Equal(t, []string{"8471", "8528"}, got)
}
