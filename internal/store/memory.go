package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finybot/finybot/internal/domain"
)

// MemoryStore is an in-memory Store for tests and local development. All
// methods are safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userData
	jobs  map[string]domain.SyncJob
}

type userData struct {
	user         domain.User
	hasUser      bool
	cards        map[string]domain.CardProvider
	statements   map[string]domain.Statement
	transactions map[string]domain.Transaction
	chats        map[string]domain.Chat
	messages     map[string][]domain.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*userData),
		jobs:  make(map[string]domain.SyncJob),
	}
}

func (s *MemoryStore) userData(uid string) *userData {
	d, ok := s.users[uid]
	if !ok {
		d = &userData{
			cards:        make(map[string]domain.CardProvider),
			statements:   make(map[string]domain.Statement),
			transactions: make(map[string]domain.Transaction),
			chats:        make(map[string]domain.Chat),
			messages:     make(map[string][]domain.Message),
		}
		s.users[uid] = d
	}
	return d
}

// PutUser seeds a user document directly. Test helper; the HTTP surface has
// no equivalent because user documents are written by the OAuth callback.
func (s *MemoryStore) PutUser(uid string, u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	u.ID = uid
	d.user = u
	d.hasUser = true
}

func (s *MemoryStore) User(_ context.Context, uid string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok || !d.hasUser {
		return nil, nil
	}
	u := d.user
	return &u, nil
}

func (s *MemoryStore) SetGmailConnected(_ context.Context, uid, encryptedRefreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	now := time.Now().UTC()
	d.user.ID = uid
	d.user.GmailConnected = true
	d.user.GmailRefreshToken = encryptedRefreshToken
	d.user.GmailConnectedAt = &now
	d.hasUser = true
	return nil
}

func (s *MemoryStore) SetLastSyncAt(_ context.Context, uid string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	d.user.ID = uid
	d.user.LastSyncAt = &t
	d.hasUser = true
	return nil
}

func (s *MemoryStore) CardProviders(_ context.Context, uid string) ([]domain.CardProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	out := make([]domain.CardProvider, 0, len(d.cards))
	for _, p := range d.cards {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (s *MemoryStore) CardProvider(_ context.Context, uid, providerID string) (*domain.CardProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	p, ok := d.cards[providerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) AddCardProvider(_ context.Context, uid string, p domain.CardProvider) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userData(uid).cards[p.ID] = p
	return p.ID, nil
}

func (s *MemoryStore) SetCardPassword(_ context.Context, uid, providerID, encryptedPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	p := d.cards[providerID]
	p.EncryptedPassword = encryptedPassword
	d.cards[providerID] = p
	return nil
}

func (s *MemoryStore) DeleteCardProvider(_ context.Context, uid, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.users[uid]; ok {
		delete(d.cards, providerID)
	}
	return nil
}

func (s *MemoryStore) Statement(_ context.Context, uid, statementID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	st, ok := d.statements[statementID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStore) Statements(_ context.Context, uid string) ([]domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Statement, 0, len(d.statements))
	for _, st := range d.statements {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BillingMonth > out[j].BillingMonth })
	return out, nil
}

func (s *MemoryStore) StatementsForMonth(_ context.Context, uid, billingMonth string) ([]domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	var out []domain.Statement
	for _, st := range d.statements {
		if st.BillingMonth == billingMonth {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) StatementProcessed(_ context.Context, uid, gmailMessageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return false, nil
	}
	for _, st := range d.statements {
		if st.GmailMessageID == gmailMessageID && st.Status == domain.StatementProcessed {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) PutStatement(_ context.Context, uid, statementID string, st domain.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = statementID
	s.userData(uid).statements[statementID] = st
	return nil
}

func (s *MemoryStore) MarkStatementFailed(_ context.Context, uid, statementID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	st := d.statements[statementID]
	st.ID = statementID
	st.Status = domain.StatementFailed
	st.ErrorReason = reason
	d.statements[statementID] = st
	return nil
}

func (s *MemoryStore) DeleteStatement(_ context.Context, uid, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.users[uid]; ok {
		delete(d.statements, statementID)
	}
	return nil
}

func (s *MemoryStore) BatchAddTransactions(_ context.Context, uid string, txs []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	for _, tx := range txs {
		d.transactions[tx.ID] = tx
	}
	return nil
}

func (s *MemoryStore) TransactionsForMonths(_ context.Context, uid string, billingMonths []string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	months := make(map[string]bool, len(billingMonths))
	for _, m := range billingMonths {
		months[m] = true
	}
	var out []domain.Transaction
	for _, tx := range d.transactions {
		if months[tx.BillingMonth] {
			out = append(out, tx)
		}
	}
	sortTransactionsByDateDesc(out)
	return out, nil
}

func (s *MemoryStore) Transactions(_ context.Context, uid string, q TransactionQuery) ([]domain.Transaction, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	d, ok := s.users[uid]
	if !ok {
		return nil, "", nil
	}
	var all []domain.Transaction
	for _, tx := range d.transactions {
		if q.BillingMonth != "" && tx.BillingMonth != q.BillingMonth {
			continue
		}
		if q.CardProvider != "" && tx.CardProvider != q.CardProvider {
			continue
		}
		all = append(all, tx)
	}
	sortTransactionsByDateDesc(all)

	start := 0
	if q.Cursor != "" {
		for i, tx := range all {
			if tx.ID == q.Cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(all) {
		return nil, "", nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]

	next := ""
	if len(page) == limit {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

func sortTransactionsByDateDesc(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		di, dj := txs[i].Date, txs[j].Date
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.After(*dj)
		default:
			return txs[i].ID < txs[j].ID
		}
	})
}

func (s *MemoryStore) CreateJob(_ context.Context, jobID, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = domain.SyncJob{
		ID:          jobID,
		UID:         uid,
		Status:      domain.JobPending,
		TriggeredAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Job(_ context.Context, jobID string) (*domain.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *MemoryStore) MarkJobProcessing(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	job.Status = domain.JobProcessing
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, jobID string, results domain.SyncResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	now := time.Now().UTC()
	job.Status = domain.JobDone
	job.CompletedAt = &now
	job.Results = &results
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) FailJob(_ context.Context, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	now := time.Now().UTC()
	job.Status = domain.JobFailed
	job.CompletedAt = &now
	job.ErrorReason = reason
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) CreateChat(_ context.Context, uid, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.userData(uid).chats[chatID] = domain.Chat{
		ID:        chatID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *MemoryStore) Chats(_ context.Context, uid string) ([]domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Chat, 0, len(d.chats))
	for _, c := range d.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) Chat(_ context.Context, uid, chatID string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	c, ok := d.chats[chatID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, uid, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.users[uid]; ok {
		delete(d.chats, chatID)
		delete(d.messages, chatID)
	}
	return nil
}

func (s *MemoryStore) SetChatTitle(_ context.Context, uid, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	c := d.chats[chatID]
	c.Title = title
	d.chats[chatID] = c
	return nil
}

func (s *MemoryStore) TouchChat(_ context.Context, uid, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	c := d.chats[chatID]
	c.UpdatedAt = time.Now().UTC()
	d.chats[chatID] = c
	return nil
}

func (s *MemoryStore) AddMessage(_ context.Context, uid, chatID string, m domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.userData(uid)
	d.messages[chatID] = append(d.messages[chatID], m)
	return m.ID, nil
}

func (s *MemoryStore) Messages(_ context.Context, uid, chatID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Message, len(d.messages[chatID]))
	copy(out, d.messages[chatID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
