package sync

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finybot/finybot/internal/domain"
)

func TestParseDate(t *testing.T) {
	got := parseDate("2026-01-20", zerolog.Nop())
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, parseDate("", zerolog.Nop()))
	assert.Nil(t, parseDate("20/01/2026", zerolog.Nop()))
	assert.Nil(t, parseDate("not a date", zerolog.Nop()))
}

func TestNormalizeTransaction(t *testing.T) {
	tx := normalizeTransaction(domain.ExtractedTransaction{
		Amount:        -430.50,
		DebitOrCredit: "DEBIT",
		Category:      "Groceries",
	})
	assert.Equal(t, 430.50, tx.Amount)
	assert.Equal(t, "debit", tx.DebitOrCredit)
	assert.Equal(t, "Other", tx.Category)

	tx = normalizeTransaction(domain.ExtractedTransaction{
		Amount:        100,
		DebitOrCredit: "Credit",
		Category:      "Food",
	})
	assert.Equal(t, "credit", tx.DebitOrCredit)
	assert.Equal(t, "Food", tx.Category)

	// Anything that is not credit is treated as a debit.
	tx = normalizeTransaction(domain.ExtractedTransaction{DebitOrCredit: "unknown"})
	assert.Equal(t, "debit", tx.DebitOrCredit)
}

func TestDebitSum(t *testing.T) {
	sum := debitSum([]domain.ExtractedTransaction{
		{Amount: 100, DebitOrCredit: "debit"},
		{Amount: -50, DebitOrCredit: "debit"},
		{Amount: 5000, DebitOrCredit: "credit"},
	})
	assert.Equal(t, 150.0, sum)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 8))
	assert.Equal(t, "abcdefgh", truncate("abcdefghij", 8))
}
