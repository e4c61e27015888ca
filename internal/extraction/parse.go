package extraction

import (
	"regexp"
	"sort"
	"strings"

	"receipt-agent/internal/models"
	"receipt-agent/internal/prompts"
)

var categoryPattern = regexp.MustCompile(`(?i)(?:Receipt Type|Type|Category)(?:\s*:|\s*-|\s*)?\s*(FOOD_EXPENSE|TRAVEL_EXPENSE|TECH_EXPENSE|OTHER_EXPENSE)`)

// ParseCategory reads the classifier answer. Anything unrecognized is OTHER_EXPENSE.
func ParseCategory(answer string) models.Category {
	if c, ok := models.ParseCategory(answer); ok {
		return c
	}
	if m := categoryPattern.FindStringSubmatch(answer); m != nil {
		if c, ok := models.ParseCategory(m[1]); ok {
			return c
		}
	}
	return models.CategoryOther
}

var linePrefix = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

// ParseFields maps "Label: value" lines onto field keys. Fields the model omitted are
// reported as "Not specified".
func ParseFields(answer string, fields []prompts.Field) map[string]string {
	byLabel := make(map[string]string, len(fields)*2)
	for _, f := range fields {
		byLabel[strings.ToLower(f.Label)] = f.Key
		byLabel[strings.ToLower(f.Key)] = f.Key
	}

	out := make(map[string]string, len(fields))
	for _, line := range strings.Split(answer, "\n") {
		line = strings.ReplaceAll(linePrefix.ReplaceAllString(line, ""), "**", "")
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, known := byLabel[strings.ToLower(strings.TrimSpace(label))]
		if !known {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}

	for _, f := range fields {
		if v, ok := out[f.Key]; !ok || v == "" {
			out[f.Key] = "Not specified"
		}
	}
	return out
}

// EmbeddingText renders populated fields as sorted "key: value" lines.
func EmbeddingText(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if !models.IsUnspecified(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(fields[k])
	}
	return sb.String()
}
