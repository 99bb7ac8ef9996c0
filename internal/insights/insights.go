// Package insights aggregates per-month spending and turns it into a
// model-written narrative. The same aggregation backs the agent's spending
// summary tool, so both surfaces always report identical numbers.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/domain"
)

const narrativePrompt = `You are a personal finance advisor reviewing credit card spending data.

Analyze the month-over-month changes and explain:
1. Why overall spending is higher or lower compared to previous months.
2. Which specific categories or cards drove the change.
3. Any notable patterns worth calling out.

Be specific with amounts and percentages. Keep the response under 300 words.
Write in plain text paragraphs, no markdown headers or bullet points.

Data:
%s
`

// narrativeFallback is returned when the model call fails; insights are a
// convenience, not a hard dependency.
const narrativeFallback = "Unable to generate insights at this time. Please try again later."

// MonthSpend is the aggregate for one billing month. Credits (payments,
// refunds) are excluded from every total.
type MonthSpend struct {
	Total            float64            `json:"total"`
	ByCard           map[string]float64 `json:"by_card"`
	ByCategory       map[string]float64 `json:"by_category"`
	TransactionCount int                `json:"transaction_count"`
}

// Aggregate groups debit spending by month, card, and category. Every
// requested month appears in the result even when it has no transactions.
func Aggregate(txs []domain.Transaction, billingMonths []string) map[string]MonthSpend {
	out := make(map[string]MonthSpend, len(billingMonths))
	for _, month := range billingMonths {
		spend := MonthSpend{
			ByCard:     map[string]float64{},
			ByCategory: map[string]float64{},
		}
		for _, tx := range txs {
			if tx.BillingMonth != month {
				continue
			}
			spend.TransactionCount++
			if tx.DebitOrCredit != "debit" {
				continue
			}
			spend.Total += tx.Amount
			card := tx.CardProvider
			if card == "" {
				card = "unknown"
			}
			category := tx.Category
			if category == "" {
				category = "Other"
			}
			spend.ByCard[card] += tx.Amount
			spend.ByCategory[category] += tx.Amount
		}
		spend.Total = round2(spend.Total)
		for k, v := range spend.ByCard {
			spend.ByCard[k] = round2(v)
		}
		for k, v := range spend.ByCategory {
			spend.ByCategory[k] = round2(v)
		}
		out[month] = spend
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Model is the slice of the genai client the narrative needs.
type Model interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator writes spending narratives.
type Generator struct {
	model Model
	log   zerolog.Logger
}

// NewGenerator returns a Generator backed by the given model.
func NewGenerator(model Model, log zerolog.Logger) *Generator {
	return &Generator{
		model: model,
		log:   log.With().Str("component", "insights").Logger(),
	}
}

// Narrative asks the model to explain month-over-month changes in the given
// spend data. A model failure degrades to a fixed apology string.
func (g *Generator) Narrative(ctx context.Context, months []string, spend map[string]MonthSpend) string {
	payload := struct {
		Months []string              `json:"months"`
		Data   map[string]MonthSpend `json:"data"`
	}{Months: months, Data: spend}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		g.log.Error().Err(err).Msg("marshal spend data failed")
		return narrativeFallback
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: fmt.Sprintf(narrativePrompt, data)}},
	}}
	resp, err := g.model.GenerateContent(ctx, contents, nil)
	if err != nil {
		g.log.Error().Err(err).Msg("insights generation failed")
		return narrativeFallback
	}
	text := resp.Text()
	if text == "" {
		return narrativeFallback
	}
	return text
}
