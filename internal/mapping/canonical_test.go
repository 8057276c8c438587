package mapping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"float", 1.5, "1.5"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{"a", 1, true}, `["a",1,true]`},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := marshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := marshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{
			"b": 1,
			"a": 2,
		},
		"a": 3,
	}

	result, err := marshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 sorts after U+10000 in UTF-16 code units (the surrogate pair
	// starts at 0xD800) even though UTF-8 byte order says the opposite.
	obj := map[string]any{
		"":     1,
		"\U00010000": 2,
	}

	result, err := marshalCanonical(obj)
	require.NoError(t, err)

	expected := `{"` + "\U00010000" + `":2,"` + "" + `":1}`
	assert.Equal(t, expected, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := marshalCanonical("<div>a & b</div>")
	require.NoError(t, err)
	assert.Equal(t, `"<div>a & b</div>"`, string(result))
	assert.NotContains(t, string(result), `<`)
	assert.NotContains(t, string(result), `&`)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e + combining acute accent normalizes to the precomposed character,
	// so the two spellings render identically.
	decomposed, err := marshalCanonical("café")
	require.NoError(t, err)
	precomposed, err := marshalCanonical("café")
	require.NoError(t, err)

	assert.Equal(t, string(precomposed), string(decomposed))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	result, err := marshalCanonical("a b c")
	require.NoError(t, err)

	assert.Equal(t, "\"a b c\"", string(result))
	assert.NotContains(t, string(result), `\u2028`)
}

func TestMarshalCanonicalEscapedBackslashBeforeU202(t *testing.T) {
	// A literal backslash followed by "u2028" text must stay escaped; only
	// the encoder's own \u2028 escapes are rewritten.
	result, err := marshalCanonical(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalIntegralFloat(t *testing.T) {
	asFloat, err := marshalCanonical(2.0)
	require.NoError(t, err)
	asInt, err := marshalCanonical(2)
	require.NoError(t, err)

	assert.Equal(t, "2", string(asFloat))
	assert.Equal(t, string(asInt), string(asFloat))
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := marshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := marshalCanonical(f)
		assert.Error(t, err)
	}
}

func TestCompareUTF16(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"A", "a", -1},
		{"a", "aa", -1},
		{"\U00010000", "", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareUTF16(tt.a, tt.b), "compareUTF16(%q, %q)", tt.a, tt.b)
	}
}
