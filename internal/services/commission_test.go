// internal/services/commission_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommissionFor(t *testing.T) {
	tests := []struct {
		name       string
		loanAmount int64
		expected   int64
	}{
		{"small loan", 100_000, 1_000},
		{"first slab ceiling", 500_000, 1_000},
		{"just above first slab", 500_001, 3_000},
		{"second slab ceiling", 1_000_000, 3_000},
		{"third slab ceiling", 1_500_000, 5_000},
		{"fourth slab", 2_000_000, 7_500},
		{"fourth slab ceiling", 3_000_000, 7_500},
		{"fifth slab ceiling", 5_000_000, 15_000},
		{"above top slab", 5_000_001, 20_000},
		{"very large loan", 100_000_000, 20_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CommissionFor(tt.loanAmount))
		})
	}
}
