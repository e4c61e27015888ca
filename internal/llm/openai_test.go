package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("<tool_name>get_employee_data</tool_name>")) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewOpenAIClient("test-key", ts.URL, Options{Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 512, Seed: 1024}, "", "")
	out, err := c.Complete(context.Background(), "system prompt", []Message{
		{Role: RoleUser, Content: "receipt"},
		{Role: RoleAssistant, Content: "turn 1"},
		{Role: RoleUser, Content: "result 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<tool_name>get_employee_data</tool_name>", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 1024, got["seed"])
	assert.EqualValues(t, 512, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestOpenAIClient_Describe(t *testing.T) {
	var raw string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		b, _ := json.Marshal(body["messages"])
		raw = string(b)
		assert.Equal(t, "gpt-4o", body["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("Receipt Type: FOOD_EXPENSE")) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewOpenAIClient("k", ts.URL, Options{Model: "gpt-4o-mini"}, "gpt-4o", "")
	out, err := c.Describe(context.Background(), "classify", []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Receipt Type: FOOD_EXPENSE", out)
	assert.Contains(t, raw, "data:image/jpeg;base64,/9g=")
	assert.Contains(t, raw, "classify")
}

func TestOpenAIClient_Embed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer ts.Close()

	c := NewOpenAIClient("k", ts.URL, Options{}, "", "text-embedding-3-small")
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestOpenAIClient_ErrorsAreWrapped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewOpenAIClient("k", ts.URL, Options{Model: "m"}, "", "")
	_, err := c.Complete(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "openai: chat completion"))
}
