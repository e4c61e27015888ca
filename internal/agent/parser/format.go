// Package parser turns raw model text into an AgentTurn. It is purely syntactic: parameter
// schemas are checked by the tool registry, not here.
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/models"
)

// Format is a response grammar the orchestrator can ask the model to follow.
type Format interface {
	Name() string
	// Instructions describes the grammar for the system prompt.
	Instructions() string
	Parse(raw string) (*models.AgentTurn, error)
}

// ForName returns the format registered under name.
func ForName(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "tagged":
		return NewTaggedFormat(), nil
	case "json":
		return NewJSONFormat()
	default:
		return nil, fmt.Errorf("unknown response format %q", name)
	}
}

func parseFinal(s string) (bool, error) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`))
	switch s {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseParameters(s string) (map[string]interface{}, error) {
	s = stripFence(s)
	if s == "" {
		return map[string]interface{}{}, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

// stripFence removes a surrounding markdown code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// normalizeToolName treats "none" and similar placeholders as no tool.
func normalizeToolName(s string) string {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`\"'"))
	switch strings.ToLower(s) {
	case "none", "null", "n/a", "-":
		return ""
	}
	return s
}

func malformed(format string, args ...interface{}) error {
	return apperrors.NewMalformedResponseError(fmt.Sprintf(format, args...))
}
