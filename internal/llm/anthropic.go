package llm

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// AnthropicClient implements Completer over the Messages API.
type AnthropicClient struct {
	client sdk.Client
	opts   Options
}

func NewAnthropicClient(apiKey string, opts Options, extra ...option.RequestOption) *AnthropicClient {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &AnthropicClient{
		client: sdk.NewClient(reqOpts...),
		opts:   opts,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string, history []Message) (string, error) {
	maxTokens := int64(c.opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.opts.Model),
		MaxTokens:   maxTokens,
		System:      []sdk.TextBlockParam{{Text: prompt}},
		Messages:    toAnthropicMessages(history),
		Temperature: sdk.Float(c.opts.Temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.New("anthropic: empty response")
	}
	return sb.String(), nil
}

// toAnthropicMessages maps history to alternating turns. The API requires a leading user turn.
func toAnthropicMessages(history []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(history)+1)
	if len(history) == 0 || history[0].Role == RoleAssistant {
		out = append(out, sdk.NewUserMessage(sdk.NewTextBlock("Begin.")))
	}
	for _, m := range history {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}
