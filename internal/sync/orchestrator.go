// Package sync runs the statement pipeline: search Gmail for each card
// provider, download and unlock the PDF, extract structured data with the
// model, and persist statements and transactions. One run is tracked by a
// job document the frontend polls.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/gmail"
	"github.com/finybot/finybot/internal/pdf"
	"github.com/finybot/finybot/internal/store"
)

// Job-level failure reasons. These end a run before any message is touched.
const (
	reasonGmailNotConnected  = "gmail_not_connected"
	reasonNoRefreshToken     = "no_refresh_token"
	reasonTokenDecryptFailed = "refresh_token_decrypt_failed"
	reasonNoCardsConfigured  = "no_cards_configured"
)

// Per-message failure reasons recorded on the statement document.
const (
	reasonWrongPassword    = "wrong_password"
	reasonScannedPDF       = "scanned_pdf_unsupported"
	reasonExtractionFailed = "gemini_extraction_failed"
	reasonMissingPeriodTo  = "missing_billing_period_to"
	reasonNoPDFAttachment  = "no_pdf_attachment"
)

// EmailClient is the slice of the Gmail client the pipeline needs.
type EmailClient interface {
	Search(ctx context.Context, refreshToken, query string) ([]gmail.MessageRef, error)
	PDFAttachment(ctx context.Context, refreshToken, messageID string) ([]byte, string, error)
}

// DocumentGate unlocks PDFs and screens out scanned ones.
type DocumentGate interface {
	Decrypt(data []byte, password string) ([]byte, error)
	IsReadable(data []byte) bool
}

// StatementExtractor produces structured statement data from PDF bytes.
type StatementExtractor interface {
	Extract(ctx context.Context, pdfBytes []byte) (*domain.StatementExtraction, error)
}

// SecretCodec decrypts stored credentials.
type SecretCodec interface {
	Decrypt(ciphertext string) (string, error)
}

// Orchestrator drives one sync run end to end.
type Orchestrator struct {
	store     store.Store
	mail      EmailClient
	gate      DocumentGate
	extractor StatementExtractor
	secrets   SecretCodec
	log       zerolog.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(st store.Store, mail EmailClient, gate DocumentGate, ex StatementExtractor, secrets SecretCodec, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		mail:      mail,
		gate:      gate,
		extractor: ex,
		secrets:   secrets,
		log:       log.With().Str("component", "sync").Logger(),
	}
}

// Run executes one sync for a user, updating the job document throughout.
// It never returns an error; every outcome lands on the job record.
func (o *Orchestrator) Run(ctx context.Context, uid, jobID string) {
	log := o.log.With().Str("uid", uid).Str("job_id", jobID).Logger()
	log.Info().Msg("sync started")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sync panicked")
			o.failJob(ctx, jobID, truncate(fmt.Sprintf("panic: %v", r), 500))
		}
	}()

	if err := o.store.MarkJobProcessing(ctx, jobID); err != nil {
		log.Error().Err(err).Msg("mark job processing failed")
	}

	user, err := o.store.User(ctx, uid)
	if err != nil {
		o.failJob(ctx, jobID, truncate(err.Error(), 500))
		return
	}
	if user == nil || !user.GmailConnected {
		o.failJob(ctx, jobID, reasonGmailNotConnected)
		return
	}
	if user.GmailRefreshToken == "" {
		o.failJob(ctx, jobID, reasonNoRefreshToken)
		return
	}

	refreshToken, err := o.secrets.Decrypt(user.GmailRefreshToken)
	if err != nil {
		log.Error().Err(err).Msg("refresh token decrypt failed")
		o.failJob(ctx, jobID, reasonTokenDecryptFailed)
		return
	}

	providers, err := o.store.CardProviders(ctx, uid)
	if err != nil {
		o.failJob(ctx, jobID, truncate(err.Error(), 500))
		return
	}
	if len(providers) == 0 {
		o.failJob(ctx, jobID, reasonNoCardsConfigured)
		return
	}

	results := domain.SyncResults{Errors: []string{}}
	for _, p := range providers {
		o.processProvider(ctx, uid, p, refreshToken, &results)
	}

	if err := o.store.CompleteJob(ctx, jobID, results); err != nil {
		log.Error().Err(err).Msg("complete job failed")
	}
	if err := o.store.SetLastSyncAt(ctx, uid, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("update last sync time failed")
	}
	log.Info().
		Int("processed", results.Processed).
		Int("skipped", results.Skipped).
		Int("failed", results.Failed).
		Msg("sync completed")
}

func (o *Orchestrator) processProvider(ctx context.Context, uid string, p domain.CardProvider, refreshToken string, results *domain.SyncResults) {
	log := o.log.With().Str("uid", uid).Str("provider_id", p.ID).Str("provider_name", p.Name).Logger()
	log.Info().
		Bool("has_password", p.EncryptedPassword != "").
		Str("email_sender_pattern", p.EmailSenderPattern).
		Str("subject_keyword", p.SubjectKeyword).
		Msg("provider sync start")

	pdfPassword := ""
	if p.EncryptedPassword != "" {
		pw, err := o.secrets.Decrypt(p.EncryptedPassword)
		if err != nil {
			// A bad password record is not fatal here; the decrypt step will
			// fail per message and be recorded as wrong_password.
			log.Error().Err(err).Msg("pdf password decrypt failed")
		} else {
			pdfPassword = pw
		}
	}

	query := buildQuery(p, log)
	log.Info().Str("query", query).Msg("gmail query built")

	messages, err := o.mail.Search(ctx, refreshToken, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("gmail search failed")
		return
	}
	if len(messages) == 0 {
		log.Warn().Str("query", query).Msg("no messages found, check sender pattern and subject keyword")
		return
	}
	log.Info().Int("count", len(messages)).Msg("messages found")

	for _, msg := range messages {
		o.processMessage(ctx, uid, p.ID, msg.ID, pdfPassword, refreshToken, results)
	}

	log.Info().
		Int("messages_found", len(messages)).
		Int("processed", results.Processed).
		Int("skipped", results.Skipped).
		Int("failed", results.Failed).
		Msg("provider sync done")
}

// processMessage takes one Gmail message through download, unlock,
// extraction, and persistence. Failures are absorbed into results; nothing
// here stops the rest of the run.
func (o *Orchestrator) processMessage(ctx context.Context, uid, providerID, msgID, pdfPassword, refreshToken string, results *domain.SyncResults) {
	log := o.log.With().Str("uid", uid).Str("provider_id", providerID).Str("msg_id", msgID).Logger()
	log.Info().Msg("message processing start")

	exists, err := o.store.StatementProcessed(ctx, uid, msgID)
	if err != nil {
		log.Error().Err(err).Msg("idempotency check failed")
		results.Failed++
		results.Errors = append(results.Errors, fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		return
	}
	if exists {
		log.Info().Msg("statement already processed")
		results.Skipped++
		return
	}

	// Provisional record so mid-pipeline failures are visible to the user.
	tempID := fmt.Sprintf("%s_processing_%s", providerID, truncate(msgID, 8))
	if err := o.store.PutStatement(ctx, uid, tempID, domain.Statement{
		CardProvider:   providerID,
		GmailMessageID: msgID,
		Status:         domain.StatementProcessing,
	}); err != nil {
		log.Error().Err(err).Msg("provisional statement write failed")
		results.Failed++
		results.Errors = append(results.Errors, fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		return
	}

	fail := func(reason, message string) {
		if err := o.store.MarkStatementFailed(ctx, uid, tempID, truncate(reason, 200)); err != nil {
			log.Error().Err(err).Msg("mark statement failed errored")
		}
		results.Failed++
		results.Errors = append(results.Errors, message)
	}

	pdfBytes, filename, err := o.mail.PDFAttachment(ctx, refreshToken, msgID)
	if err != nil {
		log.Error().Err(err).Msg("pdf download failed")
		if errors.Is(err, gmail.ErrNoPDFAttachment) {
			fail(reasonNoPDFAttachment, fmt.Sprintf("%s/%s: no PDF attachment found in email", providerID, truncate(msgID, 8)))
		} else {
			fail(truncate(err.Error(), 200), fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		}
		return
	}
	log.Info().Str("filename", filename).Int("size_bytes", len(pdfBytes)).Msg("pdf attachment downloaded")

	if pdfPassword != "" {
		pdfBytes, err = o.gate.Decrypt(pdfBytes, pdfPassword)
		if err != nil {
			if errors.Is(err, pdf.ErrWrongPassword) {
				log.Error().Msg("wrong pdf password")
				fail(reasonWrongPassword, fmt.Sprintf("%s: wrong PDF password - update it in card settings", providerID))
				return
			}
			log.Error().Err(err).Msg("pdf decrypt failed")
			fail(truncate(err.Error(), 200), fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
			return
		}
	}

	if !o.gate.IsReadable(pdfBytes) {
		log.Error().Msg("pdf has no usable text layer")
		fail(reasonScannedPDF, fmt.Sprintf("%s/%s: scanned PDF - OCR not yet supported", providerID, truncate(msgID, 8)))
		return
	}

	extracted, err := o.extractor.Extract(ctx, pdfBytes)
	if err != nil {
		log.Error().Err(err).Msg("extraction failed")
		fail(reasonExtractionFailed, fmt.Sprintf("%s/%s: Gemini extraction failed", providerID, truncate(msgID, 8)))
		return
	}
	log.Info().
		Str("billing_period_to", extracted.BillingPeriodTo).
		Float64("total_amount_due", extracted.TotalAmountDue).
		Int("tx_count", len(extracted.Transactions)).
		Msg("extraction done")

	if extracted.BillingPeriodTo == "" {
		log.Error().Msg("extraction missing billing_period_to")
		fail(reasonMissingPeriodTo, fmt.Sprintf("%s/%s: extraction did not return billing_period_to", providerID, truncate(msgID, 8)))
		return
	}

	billingMonth := truncate(extracted.BillingPeriodTo, 7)
	finalID := fmt.Sprintf("%s_%s", providerID, billingMonth)
	log.Info().Str("billing_month", billingMonth).Str("final_id", finalID).Msg("billing month derived")

	existing, err := o.store.Statement(ctx, uid, finalID)
	if err != nil {
		log.Error().Err(err).Msg("existing statement lookup failed")
		fail(truncate(err.Error(), 200), fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		return
	}
	if existing != nil && existing.Status == domain.StatementProcessed {
		log.Info().Str("final_id", finalID).Msg("billing month already processed")
		if err := o.store.DeleteStatement(ctx, uid, tempID); err != nil {
			log.Error().Err(err).Msg("provisional statement cleanup failed")
		}
		results.Skipped++
		return
	}

	for i, tx := range extracted.Transactions {
		extracted.Transactions[i] = normalizeTransaction(tx)
	}

	if extracted.TotalAmountDue != 0 {
		if diff := math.Abs(debitSum(extracted.Transactions) - extracted.TotalAmountDue); diff > amountTolerance {
			log.Warn().
				Str("statement_id", finalID).
				Float64("sum_of_debits", debitSum(extracted.Transactions)).
				Float64("stated_total", extracted.TotalAmountDue).
				Msg("debit sum does not match stated total")
		}
	}

	now := time.Now().UTC()
	st := domain.Statement{
		CardProvider:      providerID,
		BillingMonth:      billingMonth,
		StatementDate:     parseDate(extracted.StatementDate, log),
		DueDate:           parseDate(extracted.DueDate, log),
		BillingPeriodFrom: parseDate(extracted.BillingPeriodFrom, log),
		BillingPeriodTo:   parseDate(extracted.BillingPeriodTo, log),
		TotalAmountDue:    extracted.TotalAmountDue,
		MinPaymentDue:     extracted.MinPaymentDue,
		Currency:          extracted.Currency,
		GmailMessageID:    msgID,
		Status:            domain.StatementProcessed,
		ProcessedAt:       &now,
	}
	if err := o.store.PutStatement(ctx, uid, finalID, st); err != nil {
		log.Error().Err(err).Msg("statement write failed")
		fail(truncate(err.Error(), 200), fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		return
	}
	if err := o.store.DeleteStatement(ctx, uid, tempID); err != nil {
		log.Error().Err(err).Msg("provisional statement cleanup failed")
	}

	txs := make([]domain.Transaction, 0, len(extracted.Transactions))
	for _, tx := range extracted.Transactions {
		txs = append(txs, domain.Transaction{
			ID:            uuid.NewString(),
			CardProvider:  providerID,
			StatementID:   finalID,
			Date:          parseDate(tx.Date, log),
			BillingMonth:  billingMonth,
			Description:   tx.Description,
			Amount:        tx.Amount,
			Currency:      extracted.Currency,
			DebitOrCredit: tx.DebitOrCredit,
			Category:      tx.Category,
			CreatedAt:     now,
		})
	}
	if err := o.store.BatchAddTransactions(ctx, uid, txs); err != nil {
		log.Error().Err(err).Msg("transaction batch write failed")
		fail(truncate(err.Error(), 200), fmt.Sprintf("%s/%s: %s", providerID, truncate(msgID, 8), truncate(err.Error(), 100)))
		return
	}

	results.Processed++
	log.Info().Str("billing_month", billingMonth).Int("tx_count", len(txs)).Msg("statement processed")
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, reason string) {
	if err := o.store.FailJob(ctx, jobID, reason); err != nil {
		o.log.Error().Err(err).Str("job_id", jobID).Msg("fail job write errored")
	}
	o.log.Error().Str("job_id", jobID).Str("reason", reason).Msg("sync job failed")
}
