package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/gmail"
	"github.com/finybot/finybot/internal/pdf"
	"github.com/finybot/finybot/internal/store"
)

type fakeMail struct {
	searchFunc     func(ctx context.Context, refreshToken, query string) ([]gmail.MessageRef, error)
	attachmentFunc func(ctx context.Context, refreshToken, messageID string) ([]byte, string, error)
}

func (f *fakeMail) Search(ctx context.Context, refreshToken, query string) ([]gmail.MessageRef, error) {
	return f.searchFunc(ctx, refreshToken, query)
}

func (f *fakeMail) PDFAttachment(ctx context.Context, refreshToken, messageID string) ([]byte, string, error) {
	return f.attachmentFunc(ctx, refreshToken, messageID)
}

type fakeGate struct {
	decryptFunc  func(data []byte, password string) ([]byte, error)
	readableFunc func(data []byte) bool
}

func (f *fakeGate) Decrypt(data []byte, password string) ([]byte, error) {
	if f.decryptFunc != nil {
		return f.decryptFunc(data, password)
	}
	return data, nil
}

func (f *fakeGate) IsReadable(data []byte) bool {
	if f.readableFunc != nil {
		return f.readableFunc(data)
	}
	return true
}

type fakeExtractor struct {
	extractFunc func(ctx context.Context, pdfBytes []byte) (*domain.StatementExtraction, error)
	calls       int
}

func (f *fakeExtractor) Extract(ctx context.Context, pdfBytes []byte) (*domain.StatementExtraction, error) {
	f.calls++
	return f.extractFunc(ctx, pdfBytes)
}

type plainCodec struct{}

func (plainCodec) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

func seedUser(t *testing.T, st *store.MemoryStore, uid string, providers ...domain.CardProvider) {
	t.Helper()
	st.PutUser(uid, domain.User{
		GmailConnected:    true,
		GmailRefreshToken: "refresh-token",
	})
	for _, p := range providers {
		_, err := st.AddCardProvider(context.Background(), uid, p)
		require.NoError(t, err)
	}
}

func extraction(billingTo string, txs ...domain.ExtractedTransaction) *domain.StatementExtraction {
	return &domain.StatementExtraction{
		StatementDate:   billingTo,
		BillingPeriodTo: billingTo,
		TotalAmountDue:  0,
		Currency:        "INR",
		Transactions:    txs,
	}
}

func newOrchestrator(st store.Store, mail EmailClient, gate DocumentGate, ex StatementExtractor) *Orchestrator {
	return NewOrchestrator(st, mail, gate, ex, plainCodec{}, zerolog.Nop())
}

func TestRunFailsWithoutGmailConnection(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	st.PutUser("u1", domain.User{GmailConnected: false})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	o := newOrchestrator(st, &fakeMail{}, &fakeGate{}, &fakeExtractor{})
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "gmail_not_connected", job.ErrorReason)
}

func TestRunFailsWithoutCards(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1")
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	o := newOrchestrator(st, &fakeMail{}, &fakeGate{}, &fakeExtractor{})
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "no_cards_configured", job.ErrorReason)
}

func TestRunProcessesStatement(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC", EmailSenderPattern: "@hdfcbank.com"})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	ex := &fakeExtractor{
		extractFunc: func(_ context.Context, _ []byte) (*domain.StatementExtraction, error) {
			return extraction("2026-01-20",
				domain.ExtractedTransaction{Date: "2026-01-05", Description: "SWIGGY", Amount: 430, DebitOrCredit: "debit", Category: "Food"},
				domain.ExtractedTransaction{Date: "2026-01-07", Description: "UBER", Amount: -120, DebitOrCredit: "DEBIT", Category: "Commute"},
			), nil
		},
	}

	o := newOrchestrator(st, mail, &fakeGate{}, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	require.NotNil(t, job.Results)
	assert.Equal(t, 1, job.Results.Processed)
	assert.Equal(t, 0, job.Results.Failed)

	stmt, err := st.Statement(ctx, "u1", "hdfc_2026-01")
	require.NoError(t, err)
	require.NotNil(t, stmt)
	assert.Equal(t, domain.StatementProcessed, stmt.Status)
	assert.Equal(t, "2026-01", stmt.BillingMonth)
	assert.Equal(t, "msg-00000001", stmt.GmailMessageID)
	require.NotNil(t, stmt.ProcessedAt)

	// Provisional record was cleaned up.
	temp, err := st.Statement(ctx, "u1", "hdfc_processing_msg-0000")
	require.NoError(t, err)
	assert.Nil(t, temp)

	// Transactions landed normalized: amounts positive, unknown category
	// clamped, debit/credit lowercased.
	txs, err := st.TransactionsForMonths(ctx, "u1", []string{"2026-01"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, "hdfc_2026-01", tx.StatementID)
		assert.Equal(t, "debit", tx.DebitOrCredit)
		assert.GreaterOrEqual(t, tx.Amount, 0.0)
	}
	byDesc := map[string]domain.Transaction{}
	for _, tx := range txs {
		byDesc[tx.Description] = tx
	}
	assert.Equal(t, "Other", byDesc["UBER"].Category)
	assert.Equal(t, 120.0, byDesc["UBER"].Amount)

	user, err := st.User(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, user.LastSyncAt)
}

func TestRunIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	ex := &fakeExtractor{
		extractFunc: func(_ context.Context, _ []byte) (*domain.StatementExtraction, error) {
			return extraction("2026-01-20"), nil
		},
	}
	o := newOrchestrator(st, mail, &fakeGate{}, ex)

	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))
	o.Run(ctx, "u1", "job-1")
	require.NoError(t, st.CreateJob(ctx, "job-2", "u1"))
	o.Run(ctx, "u1", "job-2")

	job, err := st.Job(ctx, "job-2")
	require.NoError(t, err)
	require.NotNil(t, job.Results)
	assert.Equal(t, 0, job.Results.Processed)
	assert.Equal(t, 1, job.Results.Skipped)
	assert.Equal(t, 1, ex.calls, "second run must not re-extract")
}

func TestRunIsolatesMessageFailures(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "aaaa111122223333"}, {ID: "bbbb111122223333"}, {ID: "cccc111122223333"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	months := map[int]string{1: "2026-01-20", 3: "2026-03-20"}
	call := 0
	ex := &fakeExtractor{
		extractFunc: func(_ context.Context, _ []byte) (*domain.StatementExtraction, error) {
			call++
			if call == 2 {
				return nil, errors.New("model unavailable")
			}
			return extraction(months[call]), nil
		},
	}

	o := newOrchestrator(st, mail, &fakeGate{}, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	require.NotNil(t, job.Results)
	assert.Equal(t, 2, job.Results.Processed)
	assert.Equal(t, 1, job.Results.Failed)
	require.Len(t, job.Results.Errors, 1)
	assert.Equal(t, "hdfc/bbbb1111: Gemini extraction failed", job.Results.Errors[0])

	failed, err := st.Statement(ctx, "u1", "hdfc_processing_bbbb1111")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, domain.StatementFailed, failed.Status)
	assert.Equal(t, "gemini_extraction_failed", failed.ErrorReason)
}

func TestRunClassifiesWrongPassword(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC", EncryptedPassword: "pw"})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	gate := &fakeGate{
		decryptFunc: func(_ []byte, _ string) ([]byte, error) {
			return nil, fmt.Errorf("%w: user authentication failed", pdf.ErrWrongPassword)
		},
	}
	ex := &fakeExtractor{}

	o := newOrchestrator(st, mail, gate, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Results)
	assert.Equal(t, 1, job.Results.Failed)
	assert.Equal(t, "hdfc: wrong PDF password - update it in card settings", job.Results.Errors[0])

	failed, err := st.Statement(ctx, "u1", "hdfc_processing_msg-0000")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "wrong_password", failed.ErrorReason)
	assert.Equal(t, 0, ex.calls)
}

func TestRunRejectsScannedPDFBeforeExtraction(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	gate := &fakeGate{readableFunc: func(_ []byte) bool { return false }}
	ex := &fakeExtractor{}

	o := newOrchestrator(st, mail, gate, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Results)
	assert.Equal(t, 1, job.Results.Failed)
	assert.Equal(t, "hdfc/msg-0000: scanned PDF - OCR not yet supported", job.Results.Errors[0])
	assert.Equal(t, 0, ex.calls, "unreadable PDFs must never reach the model")

	failed, err := st.Statement(ctx, "u1", "hdfc_processing_msg-0000")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, "scanned_pdf_unsupported", failed.ErrorReason)
}

func TestRunSkipsDuplicateBillingMonth(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedUser(t, st, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})
	require.NoError(t, st.CreateJob(ctx, "job-1", "u1"))

	// Two different emails resolving to the same billing month.
	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}, {ID: "msg-00000002"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	ex := &fakeExtractor{
		extractFunc: func(_ context.Context, _ []byte) (*domain.StatementExtraction, error) {
			return extraction("2026-01-20"), nil
		},
	}

	o := newOrchestrator(st, mail, &fakeGate{}, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := st.Job(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Results)
	assert.Equal(t, 1, job.Results.Processed)
	assert.Equal(t, 1, job.Results.Skipped)

	stmts, err := st.StatementsForMonth(ctx, "u1", "2026-01")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "hdfc_2026-01", stmts[0].ID)
}

// batchFailStore simulates rejected bulk writes, which surface only when the
// write results are checked.
type batchFailStore struct {
	*store.MemoryStore
	err error
}

func (s *batchFailStore) BatchAddTransactions(context.Context, string, []domain.Transaction) error {
	return s.err
}

func TestRunRecordsTransactionWriteFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &batchFailStore{MemoryStore: mem, err: errors.New("firestore: write rejected")}
	ctx := context.Background()
	seedUser(t, mem, "u1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})
	require.NoError(t, mem.CreateJob(ctx, "job-1", "u1"))

	mail := &fakeMail{
		searchFunc: func(_ context.Context, _, _ string) ([]gmail.MessageRef, error) {
			return []gmail.MessageRef{{ID: "msg-00000001"}}, nil
		},
		attachmentFunc: func(_ context.Context, _, _ string) ([]byte, string, error) {
			return []byte("%PDF"), "statement.pdf", nil
		},
	}
	ex := &fakeExtractor{
		extractFunc: func(_ context.Context, _ []byte) (*domain.StatementExtraction, error) {
			return extraction("2026-01-20",
				domain.ExtractedTransaction{Date: "2026-01-05", Description: "SWIGGY", Amount: 430, DebitOrCredit: "debit", Category: "Food"},
			), nil
		},
	}

	o := newOrchestrator(st, mail, &fakeGate{}, ex)
	o.Run(ctx, "u1", "job-1")

	job, err := mem.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	require.NotNil(t, job.Results)
	assert.Equal(t, 0, job.Results.Processed)
	assert.Equal(t, 1, job.Results.Failed)
	require.Len(t, job.Results.Errors, 1)
	assert.Equal(t, "hdfc/msg-0000: firestore: write rejected", job.Results.Errors[0])

	failed, err := mem.Statement(ctx, "u1", "hdfc_processing_msg-0000")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, domain.StatementFailed, failed.Status)
}
