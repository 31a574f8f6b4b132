package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeStructured parses a raw collaborator response into target, extracting
// the JSON payload from any surrounding prose and repairing it if needed.
func DecodeStructured(raw string, target interface{}) (RepairStats, error) {
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return RepairStats{}, fmt.Errorf("no JSON found in response")
	}

	repaired, stats, err := RepairJSON(jsonStr)
	if err != nil {
		return stats, fmt.Errorf("response repair failed: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return stats, fmt.Errorf("response parse failed after repair: %w", err)
	}
	return stats, nil
}

// ExtractJSON pulls the JSON payload out of a mixed text response: pure JSON,
// a fenced code block, or the first balanced object/array embedded in prose.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if strings.Contains(raw, "```") {
		var block []string
		inBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inBlock {
					break
				}
				inBlock = true
				continue
			}
			if inBlock {
				block = append(block, line)
			}
		}
		if len(block) > 0 {
			return strings.TrimSpace(strings.Join(block, "\n"))
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}

	opener := raw[start]
	var closer byte = '}'
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	// Truncated payload; hand the rest to the repair pass.
	return raw[start:]
}
