package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// summarizeResult compresses a tool's JSON result into one line for the
// frontend activity feed and the stored tool-call trail.
func summarizeResult(toolName, resultJSON string) string {
	var data map[string]any
	if err := json.Unmarshal([]byte(resultJSON), &data); err != nil {
		if len(resultJSON) > 200 {
			return resultJSON[:200]
		}
		return resultJSON
	}

	switch toolName {
	case toolSearchTransactions:
		return summarizeTransactions(data)
	case toolSpendingSummary:
		return summarizeSpending(data)
	case toolGetStatements:
		count, _ := data["count"].(float64)
		return fmt.Sprintf("%d statement(s) found", int(count))
	case toolListCardProviders:
		return summarizeProviders(data)
	}
	return fmt.Sprintf("Result: %d chars", len(resultJSON))
}

func summarizeTransactions(data map[string]any) string {
	count := int(floatOf(data["count"]))
	if count == 0 {
		return "No transactions found"
	}

	txs, _ := data["transactions"].([]any)
	var preview []string
	for i, raw := range txs {
		if i == 3 {
			break
		}
		tx, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := tx["description"].(string)
		if desc == "" {
			desc = "N/A"
		}
		preview = append(preview, fmt.Sprintf("₹%s - %s", formatAmount(floatOf(tx["amount"])), desc))
	}

	summary := fmt.Sprintf("%d transaction(s) found", count)
	if len(preview) > 0 {
		summary += ": " + strings.Join(preview, "; ")
	}
	if count > 3 {
		summary += fmt.Sprintf(" ... and %d more", count-3)
	}
	return summary
}

func summarizeSpending(data map[string]any) string {
	months := make([]string, 0, len(data))
	for m := range data {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	if len(months) > 3 {
		months = months[:3]
	}

	parts := make([]string, 0, len(months))
	for _, m := range months {
		total := 0.0
		if spend, ok := data[m].(map[string]any); ok {
			total = floatOf(spend["total"])
		}
		parts = append(parts, fmt.Sprintf("%s: ₹%s", m, formatAmount(total)))
	}
	return "Spending summary - " + strings.Join(parts, ", ")
}

func summarizeProviders(data map[string]any) string {
	providers, _ := data["providers"].([]any)
	if len(providers) == 0 {
		return "No cards configured"
	}
	names := make([]string, 0, len(providers))
	for _, raw := range providers {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		if name == "" {
			name = "Unknown"
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%d card(s): %s", len(names), strings.Join(names, ", "))
}

func floatOf(v any) float64 {
	f, _ := v.(float64)
	return f
}

// formatAmount renders an amount with thousands separators and two decimals,
// e.g. 15430.5 becomes "15,430.50".
func formatAmount(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	dot := strings.Index(s, ".")
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
