package sync

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
)

// amountTolerance is how far the debit sum may drift from the stated total
// before a mismatch is logged. Statements legitimately differ by small fees
// and reversals, so this is a warning, never a failure.
const amountTolerance = 50.0

// parseDate turns a YYYY-MM-DD string into a UTC timestamp. Empty or
// malformed values become nil so the record still persists.
func parseDate(s string, log zerolog.Logger) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		log.Warn().Str("value", s).Msg("invalid date string")
		return nil
	}
	t = t.UTC()
	return &t
}

// normalizeTransaction repairs the model output before persistence: amounts
// forced positive, debit/credit lowercased, unknown categories clamped to
// Other.
func normalizeTransaction(tx domain.ExtractedTransaction) domain.ExtractedTransaction {
	tx.Amount = math.Abs(tx.Amount)
	tx.DebitOrCredit = strings.ToLower(tx.DebitOrCredit)
	if tx.DebitOrCredit != "debit" && tx.DebitOrCredit != "credit" {
		tx.DebitOrCredit = "debit"
	}
	if !validCategory(tx.Category) {
		tx.Category = "Other"
	}
	return tx
}

func validCategory(c string) bool {
	for _, v := range domain.Categories {
		if v == c {
			return true
		}
	}
	return false
}

// debitSum totals the debit rows of one extraction.
func debitSum(txs []domain.ExtractedTransaction) float64 {
	var sum float64
	for _, tx := range txs {
		if strings.ToLower(tx.DebitOrCredit) == "debit" {
			sum += math.Abs(tx.Amount)
		}
	}
	return sum
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
