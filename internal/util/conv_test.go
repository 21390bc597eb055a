package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"Free", 0},
		{"free", 0},
		{"", 0},
		{"  Free  ", 0},
		{"$89.99", 89.99},
		{"89.99", 89.99},
		{"$1,299.00", 1299.00},
		{"not a price", 0},
		{"-10", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePrice(tt.in), "ParsePrice(%q)", tt.in)
	}
}

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"10 min", 10},
		{"15min", 15},
		{"  20 min  ", 20},
		{"", 0},
		{"min 10", 0},
		{"约半小时", 0},
		{"90", 90},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDurationMinutes(tt.in), "ParseDurationMinutes(%q)", tt.in)
	}
}

func TestMustParseUint(t *testing.T) {
	assert.Equal(t, uint(42), MustParseUint("42"))
	assert.Equal(t, uint(0), MustParseUint("abc"))
	assert.Equal(t, uint(0), MustParseUint("-1"))
}

func TestDurationLabel(t *testing.T) {
	assert.Equal(t, "1 min", DurationLabel(30))
	assert.Equal(t, "1 min", DurationLabel(0))
	assert.Equal(t, "2 min", DurationLabel(61))
	assert.Equal(t, "10 min", DurationLabel(600))
}
