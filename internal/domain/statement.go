package domain

import "time"

// StatementStatus is the lifecycle state of a statement record.
type StatementStatus string

const (
	// StatementProcessing marks the provisional record written before any
	// side-effecting work so mid-pipeline failures stay visible.
	StatementProcessing StatementStatus = "processing"
	// StatementProcessed is the terminal success state.
	StatementProcessed StatementStatus = "processed"
	// StatementFailed is the terminal failure state; ErrorReason says why.
	StatementFailed StatementStatus = "failed"
)

// Statement is one billing cycle of one card provider. Once finalized its
// document id is deterministic: {cardProviderID}_{billingMonth}, which is what
// guarantees at most one processed statement per provider and month.
type Statement struct {
	ID                string          `firestore:"-" json:"id"`
	CardProvider      string          `firestore:"cardProvider" json:"card_provider"`
	BillingMonth      string          `firestore:"billingMonth" json:"billing_month"`
	StatementDate     *time.Time      `firestore:"statementDate" json:"statement_date"`
	DueDate           *time.Time      `firestore:"dueDate" json:"due_date"`
	BillingPeriodFrom *time.Time      `firestore:"billingPeriodFrom" json:"billing_period_from"`
	BillingPeriodTo   *time.Time      `firestore:"billingPeriodTo" json:"billing_period_to"`
	TotalAmountDue    float64         `firestore:"totalAmountDue" json:"total_amount_due"`
	MinPaymentDue     float64         `firestore:"minPaymentDue" json:"min_payment_due"`
	Currency          string          `firestore:"currency" json:"currency"`
	GmailMessageID    string          `firestore:"gmailMessageId" json:"-"`
	Status            StatementStatus `firestore:"status" json:"status"`
	ErrorReason       string          `firestore:"errorReason" json:"error_reason,omitempty"`
	ProcessedAt       *time.Time      `firestore:"processedAt" json:"processed_at"`
}
