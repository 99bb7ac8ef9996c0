// Package store is the typed adapter over the document database. All
// financial data is scoped to one user's namespace; sync jobs live in a
// top-level collection keyed by job id. Internal logic only ever sees the
// typed entities from internal/domain; raw document maps stay inside the
// implementations.
package store

import (
	"context"
	"time"

	"github.com/finybot/finybot/internal/domain"
)

// TransactionQuery selects a page of transactions ordered by date descending.
// Cursor is the document id of the last item of the previous page; empty
// means first page.
type TransactionQuery struct {
	BillingMonth string
	CardProvider string
	Limit        int
	Cursor       string
}

// Store is the persistence contract shared by the sync pipeline and the
// agent. Lookups for a missing document return (nil, nil).
type Store interface {
	User(ctx context.Context, uid string) (*domain.User, error)
	SetGmailConnected(ctx context.Context, uid, encryptedRefreshToken string) error
	SetLastSyncAt(ctx context.Context, uid string, t time.Time) error

	CardProviders(ctx context.Context, uid string) ([]domain.CardProvider, error)
	CardProvider(ctx context.Context, uid, providerID string) (*domain.CardProvider, error)
	AddCardProvider(ctx context.Context, uid string, p domain.CardProvider) (string, error)
	SetCardPassword(ctx context.Context, uid, providerID, encryptedPassword string) error
	DeleteCardProvider(ctx context.Context, uid, providerID string) error

	Statement(ctx context.Context, uid, statementID string) (*domain.Statement, error)
	Statements(ctx context.Context, uid string) ([]domain.Statement, error)
	StatementsForMonth(ctx context.Context, uid, billingMonth string) ([]domain.Statement, error)
	// StatementProcessed reports whether a processed statement already
	// references the given source message. This is the idempotency check and
	// must run before any side-effecting work.
	StatementProcessed(ctx context.Context, uid, gmailMessageID string) (bool, error)
	PutStatement(ctx context.Context, uid, statementID string, st domain.Statement) error
	MarkStatementFailed(ctx context.Context, uid, statementID, reason string) error
	DeleteStatement(ctx context.Context, uid, statementID string) error

	BatchAddTransactions(ctx context.Context, uid string, txs []domain.Transaction) error
	TransactionsForMonths(ctx context.Context, uid string, billingMonths []string) ([]domain.Transaction, error)
	Transactions(ctx context.Context, uid string, q TransactionQuery) ([]domain.Transaction, string, error)

	CreateJob(ctx context.Context, jobID, uid string) error
	Job(ctx context.Context, jobID string) (*domain.SyncJob, error)
	MarkJobProcessing(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, results domain.SyncResults) error
	FailJob(ctx context.Context, jobID, reason string) error

	CreateChat(ctx context.Context, uid, chatID, title string) error
	Chats(ctx context.Context, uid string) ([]domain.Chat, error)
	Chat(ctx context.Context, uid, chatID string) (*domain.Chat, error)
	DeleteChat(ctx context.Context, uid, chatID string) error
	SetChatTitle(ctx context.Context, uid, chatID, title string) error
	TouchChat(ctx context.Context, uid, chatID string) error
	AddMessage(ctx context.Context, uid, chatID string, m domain.Message) (string, error)
	Messages(ctx context.Context, uid, chatID string) ([]domain.Message, error)
}

const (
	// maxPageSize caps transaction pagination regardless of the requested
	// limit.
	maxPageSize = 100
	// batchSize is the provider-imposed maximum for one batched write.
	batchSize = 500
)
