package domain

// ExtractedTransaction is one transaction row as returned by the model,
// before caller-side validation and date parsing.
type ExtractedTransaction struct {
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	DebitOrCredit string  `json:"debit_or_credit"`
	Category      string  `json:"category"`
}

// StatementExtraction is the structured output of one extraction call.
// All dates are YYYY-MM-DD strings; empty means the field was not present in
// the statement.
type StatementExtraction struct {
	StatementDate     string                 `json:"statement_date"`
	BillingPeriodFrom string                 `json:"billing_period_from"`
	BillingPeriodTo   string                 `json:"billing_period_to"`
	DueDate           string                 `json:"due_date"`
	TotalAmountDue    float64                `json:"total_amount_due"`
	MinPaymentDue     float64                `json:"min_payment_due"`
	Currency          string                 `json:"currency"`
	Transactions      []ExtractedTransaction `json:"transactions"`
}
