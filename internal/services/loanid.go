// internal/services/loanid.go
package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/kucash/kucash-backend/internal/models"
)

// Loan identifiers are 8 characters: a 2-letter brand tag, the 2-digit
// year, the uppercased first initial of the applicant's first name, and a
// 3-digit sequence scoped to that exact 5-character prefix (KC25D001).
const (
	loanIDBrandTag  = "KC"
	loanIDLength    = 8
	loanIDSeqDigits = 3
)

var errNoInitial = errors.New("applicant first name has no usable initial")

func loanIDPrefix(firstName string, now time.Time) (string, error) {
	trimmed := strings.TrimSpace(firstName)
	if trimmed == "" {
		return "", errNoInitial
	}
	initial := unicode.ToUpper([]rune(trimmed)[0])
	return fmt.Sprintf("%s%02d%c", loanIDBrandTag, now.Year()%100, initial), nil
}

// nextSequence returns the smallest unused sequence for the prefix:
// max over existing well-formed identifiers plus one, or 1 if none exist.
// Identifiers with the wrong length or a non-numeric tail are ignored.
func nextSequence(prefix string, existing []string) int {
	max := 0
	for _, id := range existing {
		if len(id) != loanIDLength || !strings.HasPrefix(id, prefix) {
			continue
		}
		seq, err := strconv.Atoi(id[len(id)-loanIDSeqDigits:])
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max + 1
}

func formatLoanID(prefix string, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, loanIDSeqDigits, seq)
}

// fallbackLoanID is the last-resort identifier when no prefix can be built:
// the brand tag plus the last 6 digits of the current epoch-millisecond
// timestamp. It deliberately cannot collide with sequenced identifiers
// because its tail is all digits where a sequenced identifier carries the
// applicant initial.
func fallbackLoanID(now time.Time) string {
	ms := now.UnixMilli()
	return fmt.Sprintf("%s%06d", loanIDBrandTag, ms%1_000_000)
}

// generateLoanID computes the next identifier for the applicant. A failed
// prefix lookup degrades to sequence 001 rather than failing the
// submission; the unique index on loan_id catches any resulting collision
// and the caller retries.
func (s *ApplicationService) generateLoanID(firstName string, now time.Time) string {
	prefix, err := loanIDPrefix(firstName, now)
	if err != nil {
		logrus.WithError(err).Warn("Falling back to timestamp loan ID")
		return fallbackLoanID(now)
	}

	var existing []string
	if err := s.db.Unscoped().Model(&models.LoanApplication{}).
		Where("loan_id LIKE ?", prefix+"%").
		Pluck("loan_id", &existing).Error; err != nil {
		logrus.WithError(err).WithField("prefix", prefix).
			Warn("Loan ID prefix lookup failed, starting sequence at 001")
		return formatLoanID(prefix, 1)
	}

	return formatLoanID(prefix, nextSequence(prefix, existing))
}
