package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider implements ChatProvider using the Chat Completions API.
type OpenAIProvider struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		base:   strings.TrimSuffix(baseURL, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

func (o *OpenAIProvider) Chat(ctx context.Context, system, user string) (string, error) {
	msgs := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	return o.complete(ctx, msgs)
}

// ChatWithFile attaches the document to the prompt: images travel as data
// URIs, anything textual is inlined, and other formats fall back to a
// base64 block so the call still produces a well-formed answer.
func (o *OpenAIProvider) ChatWithFile(ctx context.Context, system, user string, data []byte, mimeType string) (string, error) {
	var content interface{}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		content = []map[string]interface{}{
			{"type": "text", "text": user},
			{"type": "image_url", "image_url": map[string]string{
				"url": fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
			}},
		}
	case strings.HasPrefix(mimeType, "text/") || strings.Contains(mimeType, "json"):
		content = user + "\n\n---\n" + string(data)
	default:
		content = fmt.Sprintf("%s\n\n---\ndocument (%s, base64):\n%s",
			user, mimeType, base64.StdEncoding.EncodeToString(data))
	}
	msgs := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: content},
	}
	return o.complete(ctx, msgs)
}

func (o *OpenAIProvider) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	reqBody := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{Model: o.model, Messages: msgs}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("openai: empty completion")
}
