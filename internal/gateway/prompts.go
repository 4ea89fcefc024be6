package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

const categoryHint = "Broad category like Food, Rent, Salary, Entertainment, Transport, etc."

// buildCapturePrompt asks for the four transaction fields plus an
// optional date. today anchors relative phrases like "yesterday".
func buildCapturePrompt(text string, today time.Time) string {
	var b strings.Builder
	b.WriteString("Analyze this transaction text and extract details: \"")
	b.WriteString(text)
	b.WriteString("\".\n")
	b.WriteString("If the date isn't mentioned, assume today. ")
	fmt.Fprintf(&b, "Today is %s.\n", domain.Today(today))
	b.WriteString("Rules:\n")
	b.WriteString("- \"amount\" is a positive number without currency symbols.\n")
	b.WriteString("- \"type\" is \"income\" for money received and \"expense\" for money spent.\n")
	b.WriteString("- \"category\": " + categoryHint + "\n")
	b.WriteString("- \"date\" is YYYY-MM-DD when the text states or implies one, otherwise an empty string.\n")
	return b.String()
}

// buildAdvicePrompt lists the history one transaction per line.
func buildAdvicePrompt(txs []domain.Transaction) string {
	var b strings.Builder
	b.WriteString("Acting as a professional financial advisor, analyze these transactions and provide advice. Transactions:\n")
	b.WriteString(HistoryString(txs))
	return b.String()
}

// HistoryString joins Transaction.HistoryLine for txs with newlines.
func HistoryString(txs []domain.Transaction) string {
	lines := make([]string, len(txs))
	for i, tx := range txs {
		lines[i] = tx.HistoryLine()
	}
	return strings.Join(lines, "\n")
}
