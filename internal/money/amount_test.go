package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalizesToTwoDigits(t *testing.T) {
	a, err := Parse("1234.5")
	require.NoError(t, err)
	assert.Equal(t, "1234.50", a.String())
	assert.Equal(t, int64(123450), a.Cents())
}

func TestParseAcceptsDutchNotation(t *testing.T) {
	cases := map[string]int64{
		"1.234,56": 123456,
		"1234,56":  123456,
		"1,50":     150,
		"0,05":     5,
		"€ 12,50":  1250,
	}
	for raw, cents := range cases {
		a, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, cents, a.Cents(), raw)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "12..3", "--4", "1,2,3"} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestParseRoundsExcessPrecision(t *testing.T) {
	a, err := Parse("10.005")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), a.Cents())
}

func TestArithmeticIsExact(t *testing.T) {
	a := MustParse("0.10")
	b := MustParse("0.20")
	assert.Equal(t, "0.30", a.Add(b).String())
	assert.Equal(t, "-0.10", a.Sub(b).String())
	assert.Equal(t, "-0.10", a.Neg().String())
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(MustParse("0.1")))
}

func TestRoundTrip(t *testing.T) {
	a := MustParse("1234.5")
	assert.Equal(t, "1234.50", a.Format(false))
}

func TestFormatWithSymbol(t *testing.T) {
	got := MustParse("1234.50").Format(true)
	assert.Contains(t, got, "€")
	assert.Contains(t, got, "1.234,50")
}

func TestJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(MustParse("99.90"))
	require.NoError(t, err)
	assert.Equal(t, `"99.90"`, string(raw))

	var back Amount
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equal(MustParse("99.90")))
}

func TestSum(t *testing.T) {
	total := Sum(MustParse("1.00"), MustParse("2.50"), MustParse("-0.50"))
	assert.Equal(t, "3.00", total.String())
}
