// Package extract turns statement PDFs into structured data with Gemini.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/domain"
)

const extractionPrompt = `You are a financial data extraction assistant.
Extract all data from this credit card statement PDF.

Rules:
- All date fields must be in YYYY-MM-DD format.
- All amounts must be positive floats (never negative).
- debit_or_credit must be exactly "debit" or "credit".
- Include ALL transactions listed in the statement, do not skip any.
- For category, infer from the description. Use one of: Food, Travel, Shopping,
  Entertainment, Utilities, Healthcare, Fuel, EMI, Other.
- If a field is not present in the statement, use null.
- Return only valid JSON matching the required schema, no markdown fences.
`

// statementSchema constrains the model output to the extraction shape.
var statementSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"statement_date":      {Type: genai.TypeString},
		"billing_period_from": {Type: genai.TypeString},
		"billing_period_to":   {Type: genai.TypeString},
		"due_date":            {Type: genai.TypeString},
		"total_amount_due":    {Type: genai.TypeNumber},
		"min_payment_due":     {Type: genai.TypeNumber},
		"currency":            {Type: genai.TypeString},
		"transactions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"date":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"amount":      {Type: genai.TypeNumber},
					"debit_or_credit": {
						Type: genai.TypeString,
						Enum: []string{"debit", "credit"},
					},
					"category": {
						Type: genai.TypeString,
						Enum: domain.Categories,
					},
				},
				Required: []string{"date", "description", "amount", "debit_or_credit", "category"},
			},
		},
	},
	Required: []string{"transactions"},
}

// Extractor sends statement PDFs to Gemini and parses the structured reply.
type Extractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// New returns an Extractor bound to a model.
func New(client *genai.Client, model string, log zerolog.Logger) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		log:    log.With().Str("component", "extract").Logger(),
	}
}

// Extract runs one extraction call over the decrypted PDF. Temperature is
// pinned to zero so repeat runs over the same statement stay deterministic.
func (e *Extractor) Extract(ctx context.Context, pdfBytes []byte) (*domain.StatementExtraction, error) {
	e.log.Info().Int("pdf_size_bytes", len(pdfBytes)).Str("model", e.model).Msg("sending statement for extraction")

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: pdfBytes}},
			{Text: extractionPrompt},
		},
	}}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   statementSchema,
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}
	return parseExtraction([]byte(raw))
}

func parseExtraction(raw []byte) (*domain.StatementExtraction, error) {
	var out domain.StatementExtraction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return &out, nil
}
