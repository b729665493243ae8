package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: -3, want: 0},
		{in: 101.2, want: 100},
		{in: 87.46, want: 87.5},
		{in: 87.44, want: 87.4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampScore(tt.in))
		})
	}
}
