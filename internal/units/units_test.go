package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaled(t *testing.T) {
	assert.Equal(t, "1.05", Price(1_050_000).String())
	assert.Equal(t, "0.001", Lamports(1_000_000).String())
	assert.Equal(t, "18446744073.709551615", Lamports(^uint64(0)).String())
	assert.Equal(t, "1.050000", Format(1_050_000, PriceDecimals))

	v, _ := new(big.Int).SetString("3000000000000000", 10)
	assert.Equal(t, "3", ScaledBig(v, 15).String())
	assert.True(t, ScaledBig(nil, 15).IsZero())
}

func TestParseScaled(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1.05", 1_050_000},
		{"0", 0},
		{"0.000001", 1},
		{"42", 42_000_000},
		{"18446744073709.551615", ^uint64(0)},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "-1", "0.0000001", "18446744073709.551616"} {
		_, err := ParsePrice(bad)
		assert.Error(t, err, bad)
	}

	lamports, err := ParseLamports("2.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
}
