package automod

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// linkPattern counts URLs for LINKS conditions.
var linkPattern = regexp.MustCompile(`https?://\S+`)

// ConditionResult is the outcome of evaluating one condition.
type ConditionResult struct {
	Matched bool    // Whether the condition matched.
	Score   float64 // 1 when matched, 0 otherwise.
	Reason  string  // Human-readable comparison description.
}

// EvaluateCondition evaluates a single condition against a content payload.
// Evaluation never fails: invalid regex patterns and unknown operators
// produce a non-match with an explanatory reason.
func EvaluateCondition(cond Condition, payload *ContentPayload) ConditionResult {
	test := extractTestValue(cond, payload)
	testStr := stringify(test)
	valueStr := stringify(cond.Value)

	if !cond.CaseSensitive {
		testStr = strings.ToLower(testStr)
		valueStr = strings.ToLower(valueStr)
	}

	switch cond.Operator {
	case OperatorEquals:
		if testStr == valueStr {
			return matched(fmt.Sprintf("%s equals %s", testStr, valueStr))
		}
		return unmatched(fmt.Sprintf("%s does not equal %s", testStr, valueStr))
	case OperatorContains:
		if cond.WholeWord {
			pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(valueStr) + `\b`)
			if err != nil {
				return unmatched(fmt.Sprintf("invalid pattern %q", valueStr))
			}
			if pattern.MatchString(testStr) {
				return matched(fmt.Sprintf("contains word %q", valueStr))
			}
			return unmatched(fmt.Sprintf("does not contain word %q", valueStr))
		}
		if strings.Contains(testStr, valueStr) {
			return matched(fmt.Sprintf("contains %q", valueStr))
		}
		return unmatched(fmt.Sprintf("does not contain %q", valueStr))
	case OperatorNotContains:
		if !strings.Contains(testStr, valueStr) {
			return matched(fmt.Sprintf("does not contain %q", valueStr))
		}
		return unmatched(fmt.Sprintf("contains %q", valueStr))
	case OperatorStartsWith:
		if strings.HasPrefix(testStr, valueStr) {
			return matched(fmt.Sprintf("starts with %q", valueStr))
		}
		return unmatched(fmt.Sprintf("does not start with %q", valueStr))
	case OperatorEndsWith:
		if strings.HasSuffix(testStr, valueStr) {
			return matched(fmt.Sprintf("ends with %q", valueStr))
		}
		return unmatched(fmt.Sprintf("does not end with %q", valueStr))
	case OperatorGreaterThan:
		testNum := numberOf(test)
		valueNum := numberOf(cond.Value)
		if testNum > valueNum {
			return matched(fmt.Sprintf("%s > %s", formatNumber(testNum), formatNumber(valueNum)))
		}
		return unmatched(fmt.Sprintf("%s <= %s", formatNumber(testNum), formatNumber(valueNum)))
	case OperatorLessThan:
		testNum := numberOf(test)
		valueNum := numberOf(cond.Value)
		if testNum < valueNum {
			return matched(fmt.Sprintf("%s < %s", formatNumber(testNum), formatNumber(valueNum)))
		}
		return unmatched(fmt.Sprintf("%s >= %s", formatNumber(testNum), formatNumber(valueNum)))
	case OperatorMatches:
		pattern, err := regexp.Compile(valueStr)
		if err != nil {
			return unmatched(fmt.Sprintf("invalid pattern %q", valueStr))
		}
		if pattern.MatchString(testStr) {
			return matched(fmt.Sprintf("matches pattern %q", pattern.String()))
		}
		return unmatched(fmt.Sprintf("does not match pattern %q", pattern.String()))
	default:
		// Unreachable for rules that passed creation-time validation.
		return unmatched(fmt.Sprintf("Unknown operator: %s", cond.Operator))
	}
}

func matched(reason string) ConditionResult {
	return ConditionResult{Matched: true, Score: 1, Reason: reason}
}

func unmatched(reason string) ConditionResult {
	return ConditionResult{Matched: false, Score: 0, Reason: reason}
}

// extractTestValue selects the payload value a condition type tests.
// Condition types without a dedicated extraction fall back to the raw text.
func extractTestValue(cond Condition, payload *ContentPayload) any {
	if payload == nil {
		payload = &ContentPayload{}
	}
	switch cond.Type {
	case ConditionKeyword:
		return payload.Text
	case ConditionLength:
		return float64(len([]rune(payload.Text)))
	case ConditionLinks:
		return float64(len(linkPattern.FindAllString(payload.Text, -1)))
	case ConditionCaps:
		return capsRatio(payload.Text)
	case ConditionRepetition:
		return float64(repetitionCount(payload.Text))
	case ConditionUserAge:
		return payload.UserAge
	case ConditionUserKarma:
		return payload.UserKarma
	default:
		return payload.Text
	}
}

// capsRatio returns the share of letters in text that are uppercase.
func capsRatio(text string) float64 {
	letters := 0
	upper := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// repetitionCount counts runs of five or more identical characters plus
// immediately repeated words. Backreference regexes are unavailable in RE2,
// so the scan is done directly.
func repetitionCount(text string) int {
	count := 0

	runLength := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			runLength++
		} else {
			if runLength >= 5 {
				count++
			}
			runLength = 1
		}
		prev = r
	}
	if runLength >= 5 {
		count++
	}

	words := strings.Fields(strings.ToLower(text))
	for i := 1; i < len(words); i++ {
		if words[i] != "" && words[i] == words[i-1] {
			count++
		}
	}

	return count
}

// stringify renders a test or comparison value as a string.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// numberOf coerces a value to float64, returning NaN when it is not numeric.
// Comparisons against NaN are always false, so non-numeric values never
// satisfy GREATER_THAN or LESS_THAN.
func numberOf(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return math.NaN()
		}
		return parsed
	default:
		return math.NaN()
	}
}

// formatNumber renders a float without trailing zeros; NaN renders as NaN.
func formatNumber(value float64) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
