package parser

import (
	"encoding/json"
	"strings"

	"receipt-agent/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

const turnSchema = `{
  "type": "object",
  "required": ["tool_name", "parameters", "final_call"],
  "properties": {
    "reasoning":  {"type": "string"},
    "tool_name":  {"type": ["string", "null"]},
    "parameters": {"type": "object"},
    "final_call": {"type": "boolean"}
  }
}`

// JSONFormat expects a single JSON object per turn, checked against a JSON Schema.
type JSONFormat struct {
	schema *gojsonschema.Schema
}

func NewJSONFormat() (*JSONFormat, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(turnSchema))
	if err != nil {
		return nil, err
	}
	return &JSONFormat{schema: schema}, nil
}

func (f *JSONFormat) Name() string { return "json" }

func (f *JSONFormat) Instructions() string {
	return strings.TrimSpace(`
Respond with a single JSON object and nothing else:
{"reasoning": "<short note>", "tool_name": "<tool or null>", "parameters": {...}, "final_call": <true|false>}`)
}

type jsonTurn struct {
	Reasoning  string                 `json:"reasoning"`
	ToolName   *string                `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	FinalCall  bool                   `json:"final_call"`
}

func (f *JSONFormat) Parse(raw string) (*models.AgentTurn, error) {
	body := extractObject(raw)
	if body == "" {
		return nil, malformed("no JSON object in response")
	}

	result, err := f.schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, malformed("response is not valid JSON: %v", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, malformed("%s", strings.Join(problems, "; "))
	}

	var t jsonTurn
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, malformed("response is not valid JSON: %v", err)
	}

	turn := &models.AgentTurn{
		Reasoning:  strings.TrimSpace(t.Reasoning),
		Parameters: t.Parameters,
		IsFinal:    t.FinalCall,
	}
	if t.ToolName != nil {
		turn.ToolName = normalizeToolName(*t.ToolName)
	}
	if turn.ToolName == "" && !turn.IsFinal {
		return nil, malformed("tool_name is empty but final_call is false")
	}
	return turn, nil
}

// extractObject returns the outermost {...} span, tolerating code fences and surrounding prose.
func extractObject(raw string) string {
	s := stripFence(raw)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
