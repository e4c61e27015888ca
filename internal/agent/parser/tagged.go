package parser

import (
	"regexp"
	"strings"

	"receipt-agent/internal/models"
)

const (
	tagReasoning = "reasoning"
	tagToolName  = "tool_name"
	tagParams    = "parameters"
	tagFinal     = "final_call"
)

var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{tagReasoning, tagToolName, tagParams, tagFinal} {
		tagPatterns[tag] = regexp.MustCompile(`(?is)<` + tag + `>(.*?)</` + tag + `>`)
	}
}

// TaggedFormat reads <reasoning>, <tool_name>, <parameters> and <final_call> sections.
// Only reasoning is optional.
type TaggedFormat struct{}

func NewTaggedFormat() *TaggedFormat { return &TaggedFormat{} }

func (f *TaggedFormat) Name() string { return "tagged" }

func (f *TaggedFormat) Instructions() string {
	return strings.TrimSpace(`
Respond with exactly these four sections, in this order, and nothing else:
<reasoning>one or two sentences on what you are doing next</reasoning>
<tool_name>the tool to call, or none</tool_name>
<parameters>a JSON object with the tool parameters, {} when there are none</parameters>
<final_call>true when the receipt is fully processed, otherwise false</final_call>`)
}

func (f *TaggedFormat) Parse(raw string) (*models.AgentTurn, error) {
	sections := make(map[string]string, len(tagPatterns))
	for tag, re := range tagPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			sections[tag] = m[1]
		}
	}

	var missing []string
	for _, tag := range []string{tagToolName, tagParams, tagFinal} {
		if _, ok := sections[tag]; !ok {
			missing = append(missing, "<"+tag+">")
		}
	}
	if len(missing) > 0 {
		return nil, malformed("missing %s section", strings.Join(missing, ", "))
	}

	params, err := parseParameters(sections[tagParams])
	if err != nil {
		return nil, malformed("<parameters> is not a JSON object: %v", err)
	}
	final, err := parseFinal(sections[tagFinal])
	if err != nil {
		return nil, malformed("<final_call> must be true or false, got %q", strings.TrimSpace(sections[tagFinal]))
	}

	turn := &models.AgentTurn{
		Reasoning:  strings.TrimSpace(sections[tagReasoning]),
		ToolName:   normalizeToolName(sections[tagToolName]),
		Parameters: params,
		IsFinal:    final,
	}
	if turn.ToolName == "" && !turn.IsFinal {
		return nil, malformed("<tool_name> is empty but <final_call> is false")
	}
	return turn, nil
}
