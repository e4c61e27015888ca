package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client         *openai.Client
	opts           Options
	visionModel    string
	embeddingModel string
}

func NewOpenAIClient(apiKey, baseURL string, opts Options, visionModel, embeddingModel string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if visionModel == "" {
		visionModel = opts.Model
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(config),
		opts:           opts,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
	}
}

func (c *OpenAIClient) request(model string, messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(c.opts.Temperature),
		MaxTokens:   c.opts.MaxTokens,
	}
	if c.opts.Seed != 0 {
		seed := c.opts.Seed
		req.Seed = &seed
	}
	return req
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, history []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.request(c.opts.Model, messages))
	if err != nil {
		return "", eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Describe(ctx context.Context, prompt string, image []byte, contentType string) (string, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))
	messages := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailHigh},
			},
		},
	}}

	resp, err := c.client.CreateChatCompletion(ctx, c.request(c.visionModel, messages))
	if err != nil {
		return "", eris.Wrap(err, "openai: vision completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, eris.Wrap(err, "openai: embeddings")
	}
	if len(resp.Data) == 0 {
		return nil, eris.New("openai: no embedding data")
	}
	return resp.Data[0].Embedding, nil
}
