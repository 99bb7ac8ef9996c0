package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/insights"
	"github.com/finybot/finybot/internal/store"
)

const (
	toolSearchTransactions = "search_transactions"
	toolSpendingSummary    = "get_spending_summary"
	toolGetStatements      = "get_statements"
	toolListCardProviders  = "list_card_providers"
)

// defaultSearchLimit caps search_transactions results unless the model asks
// for more.
const defaultSearchLimit = 20

// defaultWindowMonths is how far back a search reaches when the model gives
// no billing months.
const defaultWindowMonths = 3

// Toolbox executes the agent's tools against one user's data. The now field
// is injectable so the default search window is testable.
type Toolbox struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewToolbox returns a Toolbox over the given store.
func NewToolbox(st store.Store, log zerolog.Logger) *Toolbox {
	return &Toolbox{
		store: st,
		log:   log.With().Str("component", "agent").Logger(),
		now:   time.Now,
	}
}

// Declarations returns the function declarations advertised to the model.
func (t *Toolbox) Declarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        toolSearchTransactions,
				Description: "Search and filter the user's credit card transactions. Returns matching transactions with date, description, amount, category, and card provider.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"billing_month":       {Type: genai.TypeString, Description: "Filter by billing month in YYYY-MM format. If not specified, searches recent months."},
						"billing_months":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Filter by multiple billing months (YYYY-MM). Use this for cross-month searches."},
						"category":            {Type: genai.TypeString, Description: "Filter by category: Food, Travel, Shopping, Entertainment, Utilities, Healthcare, Fuel, EMI, Other"},
						"card_provider":       {Type: genai.TypeString, Description: "Filter by card provider name"},
						"min_amount":          {Type: genai.TypeNumber, Description: "Minimum transaction amount"},
						"max_amount":          {Type: genai.TypeNumber, Description: "Maximum transaction amount"},
						"description_keyword": {Type: genai.TypeString, Description: "Search keyword in transaction description (case-insensitive)"},
						"debit_or_credit":     {Type: genai.TypeString, Description: "Filter by 'debit' or 'credit'"},
						"limit":               {Type: genai.TypeInteger, Description: "Maximum number of results to return (default 20)"},
						"start_date":          {Type: genai.TypeString, Description: "Start date filter in YYYY-MM-DD format"},
						"end_date":            {Type: genai.TypeString, Description: "End date filter in YYYY-MM-DD format"},
					},
				},
			},
			{
				Name:        toolSpendingSummary,
				Description: "Get aggregated spending summary grouped by category or card provider for specified billing months. Shows totals and breakdowns.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"billing_months": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Billing months to aggregate (YYYY-MM format). Required."},
						"group_by":       {Type: genai.TypeString, Description: "Group results by 'category' or 'card'. Defaults to 'category'."},
					},
					Required: []string{"billing_months"},
				},
			},
			{
				Name:        toolGetStatements,
				Description: "Get credit card statement summaries including total amount due, minimum payment, due dates, and billing periods.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"billing_months": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Filter by billing months (YYYY-MM format). If empty, returns all statements."},
						"card_provider":  {Type: genai.TypeString, Description: "Filter by card provider name"},
					},
				},
			},
			{
				Name:        toolListCardProviders,
				Description: "List all credit card providers configured by the user, including card names.",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{},
				},
			},
		},
	}}
}

// Execute runs one tool call and returns its JSON result. Failures come back
// as a JSON error object so the model can react instead of the stream dying.
func (t *Toolbox) Execute(ctx context.Context, uid, name string, args map[string]any) string {
	var (
		result string
		err    error
	)
	switch name {
	case toolSearchTransactions:
		result, err = t.searchTransactions(ctx, uid, args)
	case toolSpendingSummary:
		result, err = t.spendingSummary(ctx, uid, args)
	case toolGetStatements:
		result, err = t.getStatements(ctx, uid, args)
	case toolListCardProviders:
		result, err = t.listCardProviders(ctx, uid)
	default:
		err = fmt.Errorf("Unknown tool: %s", name)
	}
	if err != nil {
		t.log.Error().Err(err).Str("tool", name).Msg("tool execution failed")
		return errJSON(err)
	}
	return result
}

func errJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func (t *Toolbox) searchTransactions(ctx context.Context, uid string, args map[string]any) (string, error) {
	months := strSlice(args, "billing_months")
	if len(months) == 0 {
		if m := str(args, "billing_month"); m != "" {
			months = []string{m}
		}
	}
	if len(months) == 0 {
		months = t.defaultWindow()
	}

	txs, err := t.store.TransactionsForMonths(ctx, uid, months)
	if err != nil {
		return "", err
	}

	if c := str(args, "category"); c != "" {
		txs = filter(txs, func(tx domain.Transaction) bool {
			return strings.EqualFold(tx.Category, c)
		})
	}
	if cp := str(args, "card_provider"); cp != "" {
		needle := strings.ToLower(cp)
		txs = filter(txs, func(tx domain.Transaction) bool {
			return strings.Contains(strings.ToLower(tx.CardProvider), needle)
		})
	}
	if v, ok := num(args, "min_amount"); ok {
		txs = filter(txs, func(tx domain.Transaction) bool { return tx.Amount >= v })
	}
	if v, ok := num(args, "max_amount"); ok {
		txs = filter(txs, func(tx domain.Transaction) bool { return tx.Amount <= v })
	}
	if kw := str(args, "description_keyword"); kw != "" {
		needle := strings.ToLower(kw)
		txs = filter(txs, func(tx domain.Transaction) bool {
			return strings.Contains(strings.ToLower(tx.Description), needle)
		})
	}
	if dc := str(args, "debit_or_credit"); dc != "" {
		want := strings.ToLower(dc)
		txs = filter(txs, func(tx domain.Transaction) bool {
			return strings.ToLower(tx.DebitOrCredit) == want
		})
	}
	if start := str(args, "start_date"); start != "" {
		txs = filter(txs, func(tx domain.Transaction) bool { return dateStr(tx.Date) >= start })
	}
	if end := str(args, "end_date"); end != "" {
		txs = filter(txs, func(tx domain.Transaction) bool { return dateStr(tx.Date) <= end })
	}

	sort.SliceStable(txs, func(i, j int) bool { return dateStr(txs[i].Date) > dateStr(txs[j].Date) })

	limit := defaultSearchLimit
	if v, ok := num(args, "limit"); ok && int(v) > 0 {
		limit = int(v)
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}

	return marshalResult(map[string]any{"count": len(txs), "transactions": txs})
}

func (t *Toolbox) spendingSummary(ctx context.Context, uid string, args map[string]any) (string, error) {
	months := strSlice(args, "billing_months")
	if len(months) == 0 {
		return "", fmt.Errorf("billing_months is required")
	}

	txs, err := t.store.TransactionsForMonths(ctx, uid, months)
	if err != nil {
		return "", err
	}
	return marshalResult(insights.Aggregate(txs, months))
}

func (t *Toolbox) getStatements(ctx context.Context, uid string, args map[string]any) (string, error) {
	stmts, err := t.store.Statements(ctx, uid)
	if err != nil {
		return "", err
	}

	if months := strSlice(args, "billing_months"); len(months) > 0 {
		set := map[string]bool{}
		for _, m := range months {
			set[m] = true
		}
		stmts = filter(stmts, func(s domain.Statement) bool { return set[s.BillingMonth] })
	}
	if cp := str(args, "card_provider"); cp != "" {
		needle := strings.ToLower(cp)
		stmts = filter(stmts, func(s domain.Statement) bool {
			return strings.Contains(strings.ToLower(s.CardProvider), needle)
		})
	}

	return marshalResult(map[string]any{"count": len(stmts), "statements": stmts})
}

func (t *Toolbox) listCardProviders(ctx context.Context, uid string) (string, error) {
	providers, err := t.store.CardProviders(ctx, uid)
	if err != nil {
		return "", err
	}

	// Only the identifying fields; the encrypted password never leaves the
	// store layer.
	type safeProvider struct {
		ID                 string `json:"id"`
		Name               string `json:"name"`
		EmailSenderPattern string `json:"email_sender_pattern"`
		SubjectKeyword     string `json:"subject_keyword"`
	}
	safe := make([]safeProvider, 0, len(providers))
	for _, p := range providers {
		safe = append(safe, safeProvider{
			ID:                 p.ID,
			Name:               p.Name,
			EmailSenderPattern: p.EmailSenderPattern,
			SubjectKeyword:     p.SubjectKeyword,
		})
	}
	return marshalResult(map[string]any{"count": len(safe), "providers": safe})
}

// defaultWindow is the current billing month and the two before it, wrapping
// across year boundaries.
func (t *Toolbox) defaultWindow() []string {
	now := t.now().UTC()
	months := make([]string, 0, defaultWindowMonths)
	year, month := now.Year(), int(now.Month())
	for i := 0; i < defaultWindowMonths; i++ {
		m := month - i
		y := year
		if m <= 0 {
			m += 12
			y--
		}
		months = append(months, fmt.Sprintf("%04d-%02d", y, m))
	}
	return months
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(b), nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func dateStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// Argument coercion. Function call arguments arrive as generic JSON values,
// so numbers are float64 and lists are []any.

func str(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func num(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func strSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		if vs, ok := args[key].([]string); ok {
			return vs
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
