package domain

import "time"

// Categories is the closed set a transaction may be classified into. The
// extraction prompt instructs the model to use these; anything else is
// clamped to "Other" before persistence.
var Categories = []string{
	"Food", "Travel", "Shopping", "Entertainment", "Utilities",
	"Healthcare", "Fuel", "EMI", "Other",
}

// Transaction is one row of a processed statement. Transactions are written
// in a batch tied to exactly one processed statement and are immutable after
// that.
type Transaction struct {
	ID            string     `firestore:"-" json:"id"`
	CardProvider  string     `firestore:"cardProvider" json:"card_provider"`
	StatementID   string     `firestore:"statementId" json:"statement_id"`
	Date          *time.Time `firestore:"date" json:"date"`
	BillingMonth  string     `firestore:"billingMonth" json:"billing_month"`
	Description   string     `firestore:"description" json:"description"`
	Amount        float64    `firestore:"amount" json:"amount"`
	Currency      string     `firestore:"currency" json:"currency"`
	DebitOrCredit string     `firestore:"debitOrCredit" json:"debit_or_credit"`
	Category      string     `firestore:"category" json:"category"`
	CreatedAt     time.Time  `firestore:"createdAt" json:"created_at"`
}
