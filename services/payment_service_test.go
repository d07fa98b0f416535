package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStakeCentsRoundsExactly(t *testing.T) {
	cases := []struct {
		dollars float64
		cents   int64
	}{
		{15, 1500},
		{100, 10000},
		// 16.08 * 100 is 1607.999... as a float64; truncation would
		// undercharge a cent.
		{16.08, 1608},
		{29.35, 2935},
		{99.99, 9999},
		{47.5, 4750},
	}

	for _, c := range cases {
		assert.Equal(t, c.cents, stakeCents(c.dollars), "stake %v", c.dollars)
	}
}
