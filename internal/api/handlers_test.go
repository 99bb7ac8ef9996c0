package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finybot/finybot/internal/domain"
)

func seedConnectedUser(env *testEnv, uid string) {
	env.store.PutUser(uid, domain.User{GmailConnected: true, GmailRefreshToken: "enc"})
}

func TestSyncTriggerRequiresGmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sync", "user-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gmail not connected")
}

func TestSyncTriggerRequiresCards(t *testing.T) {
	env := newTestEnv(t)
	seedConnectedUser(env, "user-1")

	rec := env.do(t, http.MethodPost, "/api/sync", "user-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No card providers configured")
}

func TestSyncTriggerAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedConnectedUser(env, "user-1")
	_, err := env.store.AddCardProvider(ctx, "user-1", domain.CardProvider{ID: "hdfc", Name: "HDFC"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sync", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	rec = env.do(t, http.MethodGet, "/api/sync/status/"+resp.JobID, "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	// Another user cannot read the job.
	rec = env.do(t, http.MethodGet, "/api/sync/status/"+resp.JobID, "user-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sync/status/nope", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCardsLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cards/", "user-1",
		`{"name":"HDFC Infinia","email_sender_pattern":"@hdfcbank.net","subject_keyword":"statement","password":"pw123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created cardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "HDFC Infinia", created.Name)
	assert.NotContains(t, rec.Body.String(), "pw123")

	rec = env.do(t, http.MethodGet, "/api/cards/", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []cardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.NotContains(t, rec.Body.String(), "pw123")

	// The stored password is encrypted, not plaintext.
	provider, err := env.store.CardProvider(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.NotEmpty(t, provider.EncryptedPassword)
	assert.NotEqual(t, "pw123", provider.EncryptedPassword)

	rec = env.do(t, http.MethodPut, "/api/cards/"+created.ID+"/password", "user-1", `{"password":"pw456"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/cards/"+created.ID, "user-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/cards/"+created.ID, "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddCardRequiresName(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/cards/", "user-1", `{"email_sender_pattern":"@x.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")
}

func TestTransactionsPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	txs := make([]domain.Transaction, 0, 5)
	for i := 0; i < 5; i++ {
		d := time.Date(2026, 1, i+1, 0, 0, 0, 0, time.UTC)
		txs = append(txs, domain.Transaction{
			ID:            fmt.Sprintf("tx-%d", i),
			Date:          &d,
			Description:   "COFFEE",
			Amount:        100,
			DebitOrCredit: "debit",
			BillingMonth:  "2026-01",
		})
	}
	require.NoError(t, env.store.BatchAddTransactions(ctx, "user-1", txs))

	rec := env.do(t, http.MethodGet, "/api/transactions?limit=3", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Transactions []domain.Transaction `json:"transactions"`
		NextCursor   string               `json:"next_cursor"`
		HasMore      bool                 `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Transactions, 3)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=3&cursor="+page.NextCursor, "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Transactions, 2)
	assert.False(t, page.HasMore)

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=500", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatementsMonthlyReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/statements/not-a-month", "user-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/statements/2026-01", "user-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.store.PutStatement(ctx, "user-1", "hdfc_2026-01", domain.Statement{
		ID:             "hdfc_2026-01",
		CardProvider:   "hdfc",
		BillingMonth:   "2026-01",
		Status:         domain.StatementProcessed,
		TotalAmountDue: 1234.56,
	}))

	rec = env.do(t, http.MethodGet, "/api/statements/2026-01", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1234.56")
}

func TestInsightsValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/insights", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/insights?months=2026-1", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/insights?months=2026-01,2025-12,2025-11,2025-10,2025-09,2025-08,2025-07", "user-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maximum 6 months")

	rec = env.do(t, http.MethodGet, "/api/insights?months=2026-01", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatSendStreamsAndPersists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/chat/send", "user-1", `{"message":"How much did I spend on food?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: chat_id")
	assert.Contains(t, body, "event: message")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "All good.")

	chats, err := env.store.Chats(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "All good.", chats[0].Title)

	msgs, err := env.store.Messages(ctx, "user-1", chats[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "All good.", msgs[1].Content)
}

func TestChatSendUnknownConversation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat/send", "user-1", `{"message":"hi","conversation_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateChat(ctx, "user-1", "chat-1", "Food spend"))

	rec := env.do(t, http.MethodDelete, "/api/chat/chat-1", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Chat deleted")

	rec = env.do(t, http.MethodDelete, "/api/chat/chat-1", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
