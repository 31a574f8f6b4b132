package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what a repair pass did to a structured response.
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

// RepairJSON attempts to repair a malformed structured response. Cheap
// targeted fixes run first (trailing commas, truncated objects, commented or
// single-quoted output, bare keys); the jsonrepair library is the fallback
// when those are not enough.
func RepairJSON(raw string) (repaired string, stats RepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)

	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	apply := func(name string, fix func(string) string) {
		fixed := fix(repaired)
		if fixed != repaired {
			repaired = fixed
			stats.RepairStrategies = append(stats.RepairStrategies, name)
			stats.ErrorsFixed++
		}
	}

	apply("trailing_commas", removeTrailingCommas)
	apply("completion", completeJSON)
	apply("comments_removed", stripComments)
	apply("key_quotes", quoteBareKeys)
	apply("single_quotes", doubleQuoteStrings)

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
		if libraryErr == nil && libraryRepaired != repaired {
			repaired = libraryRepaired
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}
	return repaired, stats, nil
}

var (
	trailingCommaBrace   = regexp.MustCompile(`,\s*}`)
	trailingCommaBracket = regexp.MustCompile(`,\s*]`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuotedString   = regexp.MustCompile(`'([^']*)'`)
	blockComment         = regexp.MustCompile(`/\*.*?\*/`)
)

func removeTrailingCommas(s string) string {
	s = trailingCommaBrace.ReplaceAllString(s, "}")
	return trailingCommaBracket.ReplaceAllString(s, "]")
}

// completeJSON closes unmatched braces and brackets in last-opened,
// first-closed order. Truncated model output is the common cause.
func completeJSON(s string) string {
	s = strings.TrimSpace(s)

	var stack []rune
	inString := false
	escaped := false
	for _, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

func stripComments(s string) string {
	if !strings.Contains(s, "//") && !strings.Contains(s, "/*") {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx != -1 && !insideString(line, idx) {
			lines[i] = line[:idx]
		}
	}
	return blockComment.ReplaceAllString(strings.Join(lines, "\n"), "")
}

// insideString reports whether byte offset idx falls inside a double-quoted
// string, so URLs in rationale text survive comment stripping.
func insideString(line string, idx int) bool {
	quotes := 0
	for i := 0; i < idx; i++ {
		if line[i] == '"' && (i == 0 || line[i-1] != '\\') {
			quotes++
		}
	}
	return quotes%2 == 1
}

func quoteBareKeys(s string) string {
	return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
}

func doubleQuoteStrings(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	return singleQuotedString.ReplaceAllString(s, `"$1"`)
}
