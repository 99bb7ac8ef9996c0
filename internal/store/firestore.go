package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/finybot/finybot/internal/domain"
)

const (
	usersCollection        = "users"
	cardsCollection        = "card_providers"
	statementsCollection   = "statements"
	transactionsCollection = "transactions"
	chatsCollection        = "chats"
	messagesCollection     = "messages"
	jobsCollection         = "jobs"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	log    zerolog.Logger
}

// NewFirestoreStore connects to Firestore in the given project.
func NewFirestoreStore(ctx context.Context, projectID string, log zerolog.Logger) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{
		client: client,
		log:    log.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) userDoc(uid string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(uid)
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// --- users ---

func (s *FirestoreStore) User(ctx context.Context, uid string) (*domain.User, error) {
	snap, err := s.userDoc(uid).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	var u domain.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func (s *FirestoreStore) SetGmailConnected(ctx context.Context, uid, encryptedRefreshToken string) error {
	_, err := s.userDoc(uid).Set(ctx, map[string]any{
		"gmailConnected":    true,
		"gmailRefreshToken": encryptedRefreshToken,
		"gmailConnectedAt":  time.Now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set gmail connected for %s: %w", uid, err)
	}
	return nil
}

func (s *FirestoreStore) SetLastSyncAt(ctx context.Context, uid string, t time.Time) error {
	_, err := s.userDoc(uid).Set(ctx, map[string]any{"lastSyncAt": t}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set last sync for %s: %w", uid, err)
	}
	return nil
}

// --- card providers ---

func (s *FirestoreStore) CardProviders(ctx context.Context, uid string) ([]domain.CardProvider, error) {
	iter := s.userDoc(uid).Collection(cardsCollection).OrderBy("addedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.CardProvider
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list card providers: %w", err)
		}
		var p domain.CardProvider
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode card provider %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		out = append(out, p)
	}
	return out, nil
}

func (s *FirestoreStore) CardProvider(ctx context.Context, uid, providerID string) (*domain.CardProvider, error) {
	snap, err := s.userDoc(uid).Collection(cardsCollection).Doc(providerID).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get card provider %s: %w", providerID, err)
	}
	var p domain.CardProvider
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode card provider %s: %w", providerID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *FirestoreStore) AddCardProvider(ctx context.Context, uid string, p domain.CardProvider) (string, error) {
	ref := s.userDoc(uid).Collection(cardsCollection).Doc(p.ID)
	if _, err := ref.Set(ctx, p); err != nil {
		return "", fmt.Errorf("add card provider %s: %w", p.ID, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) SetCardPassword(ctx context.Context, uid, providerID, encryptedPassword string) error {
	ref := s.userDoc(uid).Collection(cardsCollection).Doc(providerID)
	_, err := ref.Set(ctx, map[string]any{"encryptedPassword": encryptedPassword}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set card password %s: %w", providerID, err)
	}
	return nil
}

func (s *FirestoreStore) DeleteCardProvider(ctx context.Context, uid, providerID string) error {
	if _, err := s.userDoc(uid).Collection(cardsCollection).Doc(providerID).Delete(ctx); err != nil {
		return fmt.Errorf("delete card provider %s: %w", providerID, err)
	}
	return nil
}

// --- statements ---

func (s *FirestoreStore) Statement(ctx context.Context, uid, statementID string) (*domain.Statement, error) {
	snap, err := s.userDoc(uid).Collection(statementsCollection).Doc(statementID).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get statement %s: %w", statementID, err)
	}
	return decodeStatement(snap)
}

func (s *FirestoreStore) Statements(ctx context.Context, uid string) ([]domain.Statement, error) {
	q := s.userDoc(uid).Collection(statementsCollection).OrderBy("billingMonth", firestore.Desc)
	return s.statementQuery(ctx, q)
}

func (s *FirestoreStore) StatementsForMonth(ctx context.Context, uid, billingMonth string) ([]domain.Statement, error) {
	q := s.userDoc(uid).Collection(statementsCollection).Where("billingMonth", "==", billingMonth)
	return s.statementQuery(ctx, q)
}

func (s *FirestoreStore) statementQuery(ctx context.Context, q firestore.Query) ([]domain.Statement, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Statement
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list statements: %w", err)
		}
		st, err := decodeStatement(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func decodeStatement(snap *firestore.DocumentSnapshot) (*domain.Statement, error) {
	var st domain.Statement
	if err := snap.DataTo(&st); err != nil {
		return nil, fmt.Errorf("decode statement %s: %w", snap.Ref.ID, err)
	}
	st.ID = snap.Ref.ID
	return &st, nil
}

func (s *FirestoreStore) StatementProcessed(ctx context.Context, uid, gmailMessageID string) (bool, error) {
	iter := s.userDoc(uid).Collection(statementsCollection).
		Where("gmailMessageId", "==", gmailMessageID).
		Where("status", "==", string(domain.StatementProcessed)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check statement for message %s: %w", gmailMessageID, err)
	}
	return true, nil
}

func (s *FirestoreStore) PutStatement(ctx context.Context, uid, statementID string, st domain.Statement) error {
	ref := s.userDoc(uid).Collection(statementsCollection).Doc(statementID)
	if _, err := ref.Set(ctx, st); err != nil {
		return fmt.Errorf("put statement %s: %w", statementID, err)
	}
	return nil
}

func (s *FirestoreStore) MarkStatementFailed(ctx context.Context, uid, statementID, reason string) error {
	ref := s.userDoc(uid).Collection(statementsCollection).Doc(statementID)
	_, err := ref.Set(ctx, map[string]any{
		"status":      string(domain.StatementFailed),
		"errorReason": reason,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("mark statement %s failed: %w", statementID, err)
	}
	return nil
}

func (s *FirestoreStore) DeleteStatement(ctx context.Context, uid, statementID string) error {
	if _, err := s.userDoc(uid).Collection(statementsCollection).Doc(statementID).Delete(ctx); err != nil {
		return fmt.Errorf("delete statement %s: %w", statementID, err)
	}
	return nil
}

// --- transactions ---

func (s *FirestoreStore) BatchAddTransactions(ctx context.Context, uid string, txs []domain.Transaction) error {
	col := s.userDoc(uid).Collection(transactionsCollection)
	bw := s.client.BulkWriter(ctx)

	// Jobs are kept so write results can be checked after End; the enqueue
	// calls alone only catch malformed requests.
	writes := make([]*firestore.BulkWriterJob, 0, len(txs))
	for i, tx := range txs {
		job, err := bw.Create(col.Doc(tx.ID), tx)
		if err != nil {
			return fmt.Errorf("enqueue transaction %s: %w", tx.ID, err)
		}
		writes = append(writes, job)
		if (i+1)%batchSize == 0 {
			bw.Flush()
		}
	}
	bw.End()

	for i, job := range writes {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("write transaction %s: %w", txs[i].ID, err)
		}
	}
	return nil
}

func (s *FirestoreStore) TransactionsForMonths(ctx context.Context, uid string, billingMonths []string) ([]domain.Transaction, error) {
	if len(billingMonths) == 0 {
		return nil, nil
	}
	iter := s.userDoc(uid).Collection(transactionsCollection).
		Where("billingMonth", "in", billingMonths).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list transactions for months: %w", err)
		}
		tx, err := decodeTransaction(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (s *FirestoreStore) Transactions(ctx context.Context, uid string, q TransactionQuery) ([]domain.Transaction, string, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	col := s.userDoc(uid).Collection(transactionsCollection)
	fq := col.Query
	if q.BillingMonth != "" {
		fq = fq.Where("billingMonth", "==", q.BillingMonth)
	}
	if q.CardProvider != "" {
		fq = fq.Where("cardProvider", "==", q.CardProvider)
	}
	fq = fq.OrderBy("date", firestore.Desc).Limit(limit)

	if q.Cursor != "" {
		snap, err := col.Doc(q.Cursor).Get(ctx)
		if err != nil {
			if !notFound(err) {
				return nil, "", fmt.Errorf("resolve cursor %s: %w", q.Cursor, err)
			}
			// A vanished cursor restarts from the top rather than failing
			// the whole request.
		} else {
			fq = fq.StartAfter(snap)
		}
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []domain.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("list transactions: %w", err)
		}
		tx, err := decodeTransaction(snap)
		if err != nil {
			return nil, "", err
		}
		out = append(out, *tx)
	}

	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func decodeTransaction(snap *firestore.DocumentSnapshot) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := snap.DataTo(&tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", snap.Ref.ID, err)
	}
	tx.ID = snap.Ref.ID
	return &tx, nil
}

// --- jobs ---

func (s *FirestoreStore) jobDoc(jobID string) *firestore.DocumentRef {
	return s.client.Collection(jobsCollection).Doc(jobID)
}

func (s *FirestoreStore) CreateJob(ctx context.Context, jobID, uid string) error {
	job := domain.SyncJob{
		UID:         uid,
		Status:      domain.JobPending,
		TriggeredAt: time.Now().UTC(),
	}
	if _, err := s.jobDoc(jobID).Set(ctx, job); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	return nil
}

func (s *FirestoreStore) Job(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	snap, err := s.jobDoc(jobID).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var job domain.SyncJob
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	job.ID = snap.Ref.ID
	return &job, nil
}

func (s *FirestoreStore) MarkJobProcessing(ctx context.Context, jobID string) error {
	_, err := s.jobDoc(jobID).Set(ctx, map[string]any{
		"status": string(domain.JobProcessing),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	return nil
}

func (s *FirestoreStore) CompleteJob(ctx context.Context, jobID string, results domain.SyncResults) error {
	_, err := s.jobDoc(jobID).Set(ctx, map[string]any{
		"status":      string(domain.JobDone),
		"completedAt": time.Now().UTC(),
		"results":     results,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

func (s *FirestoreStore) FailJob(ctx context.Context, jobID, reason string) error {
	_, err := s.jobDoc(jobID).Set(ctx, map[string]any{
		"status":      string(domain.JobFailed),
		"completedAt": time.Now().UTC(),
		"errorReason": reason,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// --- chats ---

func (s *FirestoreStore) chatDoc(uid, chatID string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection(chatsCollection).Doc(chatID)
}

func (s *FirestoreStore) CreateChat(ctx context.Context, uid, chatID, title string) error {
	now := time.Now().UTC()
	chat := domain.Chat{Title: title, CreatedAt: now, UpdatedAt: now}
	if _, err := s.chatDoc(uid, chatID).Set(ctx, chat); err != nil {
		return fmt.Errorf("create chat %s: %w", chatID, err)
	}
	return nil
}

func (s *FirestoreStore) Chats(ctx context.Context, uid string) ([]domain.Chat, error) {
	iter := s.userDoc(uid).Collection(chatsCollection).OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Chat
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		var c domain.Chat
		if err := snap.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode chat %s: %w", snap.Ref.ID, err)
		}
		c.ID = snap.Ref.ID
		out = append(out, c)
	}
	return out, nil
}

func (s *FirestoreStore) Chat(ctx context.Context, uid, chatID string) (*domain.Chat, error) {
	snap, err := s.chatDoc(uid, chatID).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	var c domain.Chat
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	c.ID = snap.Ref.ID
	return &c, nil
}

func (s *FirestoreStore) DeleteChat(ctx context.Context, uid, chatID string) error {
	// Messages go first so a crash mid-delete leaves an empty chat, not
	// orphaned messages.
	msgs := s.chatDoc(uid, chatID).Collection(messagesCollection)
	iter := msgs.Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var deletes []*firestore.BulkWriterJob
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list messages of chat %s: %w", chatID, err)
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			return fmt.Errorf("enqueue message delete: %w", err)
		}
		deletes = append(deletes, job)
		if len(deletes)%batchSize == 0 {
			bw.Flush()
		}
	}
	bw.End()

	// The chat doc only goes once every message delete is confirmed.
	for _, job := range deletes {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("delete messages of chat %s: %w", chatID, err)
		}
	}

	if _, err := s.chatDoc(uid, chatID).Delete(ctx); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}

func (s *FirestoreStore) SetChatTitle(ctx context.Context, uid, chatID, title string) error {
	_, err := s.chatDoc(uid, chatID).Set(ctx, map[string]any{"title": title}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set chat title %s: %w", chatID, err)
	}
	return nil
}

func (s *FirestoreStore) TouchChat(ctx context.Context, uid, chatID string) error {
	_, err := s.chatDoc(uid, chatID).Set(ctx, map[string]any{"updatedAt": time.Now().UTC()}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("touch chat %s: %w", chatID, err)
	}
	return nil
}

func (s *FirestoreStore) AddMessage(ctx context.Context, uid, chatID string, m domain.Message) (string, error) {
	ref := s.chatDoc(uid, chatID).Collection(messagesCollection).Doc(m.ID)
	if _, err := ref.Set(ctx, m); err != nil {
		return "", fmt.Errorf("add message to chat %s: %w", chatID, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Messages(ctx context.Context, uid, chatID string) ([]domain.Message, error) {
	iter := s.chatDoc(uid, chatID).Collection(messagesCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list messages of chat %s: %w", chatID, err)
		}
		var m domain.Message
		if err := snap.DataTo(&m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		m.ID = snap.Ref.ID
		out = append(out, m)
	}
	return out, nil
}
