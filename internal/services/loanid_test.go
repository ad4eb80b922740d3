// internal/services/loanid_test.go
package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanIDPrefix(t *testing.T) {
	now := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

	prefix, err := loanIDPrefix("Devi", now)
	require.NoError(t, err)
	assert.Equal(t, "KC25D", prefix)

	prefix, err = loanIDPrefix("  ananya  ", now)
	require.NoError(t, err)
	assert.Equal(t, "KC25A", prefix)

	prefix, err = loanIDPrefix("rahul", time.Date(2031, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "KC31R", prefix)
}

func TestLoanIDPrefixNoInitial(t *testing.T) {
	now := time.Now()

	_, err := loanIDPrefix("", now)
	assert.ErrorIs(t, err, errNoInitial)

	_, err = loanIDPrefix("   ", now)
	assert.ErrorIs(t, err, errNoInitial)
}

func TestNextSequence(t *testing.T) {
	prefix := "KC25D"

	assert.Equal(t, 1, nextSequence(prefix, nil))
	assert.Equal(t, 2, nextSequence(prefix, []string{"KC25D001"}))
	assert.Equal(t, 8, nextSequence(prefix, []string{"KC25D003", "KC25D007", "KC25D001"}))

	// Gaps are not reused; the sequence always moves past the maximum.
	assert.Equal(t, 10, nextSequence(prefix, []string{"KC25D009", "KC25D002"}))
}

func TestNextSequenceIgnoresMalformedIDs(t *testing.T) {
	prefix := "KC25D"

	existing := []string{
		"KC25D0012", // wrong length
		"KC25DXYZ",  // non-numeric tail
		"KC24D005",  // different prefix
		"KC25D004",
	}
	assert.Equal(t, 5, nextSequence(prefix, existing))

	// Only malformed identifiers means the sequence starts fresh.
	assert.Equal(t, 1, nextSequence(prefix, []string{"KC25Dxxx", "bogus"}))
}

func TestFormatLoanID(t *testing.T) {
	assert.Equal(t, "KC25D001", formatLoanID("KC25D", 1))
	assert.Equal(t, "KC25D042", formatLoanID("KC25D", 42))
	assert.Equal(t, "KC25D999", formatLoanID("KC25D", 999))
}

func TestFallbackLoanID(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 30, 45, 123_000_000, time.UTC)
	id := fallbackLoanID(now)

	assert.Len(t, id, 8)
	assert.True(t, strings.HasPrefix(id, "KC"))

	// The tail is all digits, which no sequenced identifier can match
	// because position 5 there is the applicant initial.
	for _, r := range id[2:] {
		assert.True(t, r >= '0' && r <= '9')
	}
}
