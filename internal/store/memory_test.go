package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finybot/finybot/internal/domain"
)

func TestMemoryStoreMissingDocsReturnNil(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.User(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	p, err := s.CardProvider(ctx, "nobody", "hdfc")
	require.NoError(t, err)
	assert.Nil(t, p)

	job, err := s.Job(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, job)

	c, err := s.Chat(ctx, "nobody", "missing")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMemoryStoreStatementProcessed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.PutStatement(ctx, "u1", "hdfc_2026-01", domain.Statement{
		CardProvider:   "hdfc",
		BillingMonth:   "2026-01",
		GmailMessageID: "msg-1",
		Status:         domain.StatementProcessed,
	})
	require.NoError(t, err)
	err = s.PutStatement(ctx, "u1", "hdfc_processing_abcd1234", domain.Statement{
		CardProvider:   "hdfc",
		GmailMessageID: "msg-2",
		Status:         domain.StatementProcessing,
	})
	require.NoError(t, err)

	done, err := s.StatementProcessed(ctx, "u1", "msg-1")
	require.NoError(t, err)
	assert.True(t, done)

	// A provisional record does not count as processed.
	done, err = s.StatementProcessed(ctx, "u1", "msg-2")
	require.NoError(t, err)
	assert.False(t, done)

	// User isolation.
	done, err = s.StatementProcessed(ctx, "u2", "msg-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMemoryStoreMarkStatementFailed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutStatement(ctx, "u1", "hdfc_processing_abcd1234", domain.Statement{
		CardProvider:   "hdfc",
		GmailMessageID: "msg-1",
		Status:         domain.StatementProcessing,
	}))
	require.NoError(t, s.MarkStatementFailed(ctx, "u1", "hdfc_processing_abcd1234", "wrong_password"))

	st, err := s.Statement(ctx, "u1", "hdfc_processing_abcd1234")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.StatementFailed, st.Status)
	assert.Equal(t, "wrong_password", st.ErrorReason)
	assert.Equal(t, "msg-1", st.GmailMessageID)
}

func TestMemoryStoreTransactionsPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 25; i++ {
		d := base.AddDate(0, 0, i)
		txs = append(txs, domain.Transaction{
			ID:           fmt.Sprintf("tx-%02d", i),
			CardProvider: "hdfc",
			BillingMonth: "2026-01",
			Date:         &d,
			Amount:       float64(i),
		})
	}
	require.NoError(t, s.BatchAddTransactions(ctx, "u1", txs))

	page1, cursor, err := s.Transactions(ctx, "u1", TransactionQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page1, 10)
	assert.Equal(t, "tx-24", page1[0].ID)
	require.NotEmpty(t, cursor)

	page2, cursor, err := s.Transactions(ctx, "u1", TransactionQuery{Limit: 10, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page2, 10)
	assert.Equal(t, "tx-14", page2[0].ID)
	require.NotEmpty(t, cursor)

	page3, cursor, err := s.Transactions(ctx, "u1", TransactionQuery{Limit: 10, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page3, 5)
	assert.Empty(t, cursor)
}

func TestMemoryStoreTransactionsFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	d := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.BatchAddTransactions(ctx, "u1", []domain.Transaction{
		{ID: "a", CardProvider: "hdfc", BillingMonth: "2026-01", Date: &d},
		{ID: "b", CardProvider: "icici", BillingMonth: "2026-01", Date: &d},
		{ID: "c", CardProvider: "hdfc", BillingMonth: "2025-12", Date: &d},
	}))

	got, _, err := s.Transactions(ctx, "u1", TransactionQuery{BillingMonth: "2026-01", CardProvider: "hdfc"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	byMonth, err := s.TransactionsForMonths(ctx, "u1", []string{"2026-01"})
	require.NoError(t, err)
	assert.Len(t, byMonth, 2)
}

func TestMemoryStoreJobLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, "job-1", "u1"))
	job, err := s.Job(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, "u1", job.UID)

	require.NoError(t, s.MarkJobProcessing(ctx, "job-1"))
	require.NoError(t, s.CompleteJob(ctx, "job-1", domain.SyncResults{Processed: 2, Skipped: 1}))

	job, err = s.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	require.NotNil(t, job.Results)
	assert.Equal(t, 2, job.Results.Processed)
	assert.NotNil(t, job.CompletedAt)
}

func TestMemoryStoreChatOrderingAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateChat(ctx, "u1", "c1", "First"))
	require.NoError(t, s.CreateChat(ctx, "u1", "c2", "Second"))
	require.NoError(t, s.TouchChat(ctx, "u1", "c1"))

	chats, err := s.Chats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)

	_, err = s.AddMessage(ctx, "u1", "c1", domain.Message{ID: "m1", Role: "user", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteChat(ctx, "u1", "c1"))
	c, err := s.Chat(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, c)
	msgs, err := s.Messages(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
