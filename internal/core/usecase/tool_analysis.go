package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

var (
	dateTriggers        = []string{"today", "current date", "what date", "what day"}
	calculationTriggers = []string{"calculate", "compute", "math", "sum", "multiply", "divide"}
	integerPattern      = regexp.MustCompile(`\d+`)
)

// AnalyzeToolNeed picks a tool from trigger phrases in the query. Date
// phrases win over arithmetic phrases.
func AnalyzeToolNeed(query string) (string, bool) {
	text := normalizeIntentText(query)
	switch {
	case containsAnyKeyword(text, dateTriggers):
		return domain.ToolCurrentDate, true
	case containsAnyKeyword(text, calculationTriggers):
		return domain.ToolCalculate, true
	default:
		return "", false
	}
}

// ArithmeticExpression builds an expression from the first two integers in
// the query, using the operator implied by its wording.
func ArithmeticExpression(query string) (string, bool) {
	numbers := integerPattern.FindAllString(query, 2)
	if len(numbers) < 2 {
		return "", false
	}
	text := normalizeIntentText(query)
	op := "+"
	switch {
	case strings.Contains(text, "multiply"):
		op = "*"
	case strings.Contains(text, "divide"):
		op = "/"
	}
	return numbers[0] + op + numbers[1], true
}

func normalizeIntentText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
