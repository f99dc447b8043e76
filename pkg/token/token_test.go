package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	testCases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"100.5", 18, "100500000000000000000"},
		{"2.5", 18, "2500000000000000000"},
		{"0.01", 18, "10000000000000000"},
		{"6.009", 18, "6009000000000000000"},
		{"0", 18, "0"},
		{"1", 0, "1"},
		{".5", 1, "5"},
		{"  42 ", 6, "42000000"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUnits(tc.in, tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}

	for _, bad := range []string{"", "-1", "1.", "abc", "1.2.3", "1e5", "0.1234567", "+1"} {
		_, err := ParseUnits(bad, 6)
		assert.Error(t, err, bad)
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "100.5", FormatUnits(MustParseUnits("100.5", 18), 18))
	assert.Equal(t, "6.009", FormatUnits(MustParseUnits("6.009", 18), 18))
	assert.Equal(t, "0.01", FormatUnits(MustParseUnits("0.01", 18), 18))
	assert.Equal(t, "7", FormatUnits(MustParseUnits("7", 18), 18))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}
