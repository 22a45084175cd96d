// Package openai implements the vision client on any OpenAI-compatible
// chat-completions server (OpenAI, llama.cpp, vLLM, LocalAI).
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/menta2k/vision-batch/pkg/client"
)

var _ client.VisionClient = (*Client)(nil)

type Client struct {
	*Config
	completions openai.ChatCompletionService
}

func New(url, model string, options ...Option) (*Client, error) {
	cfg := &Config{
		url:   url,
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	return &Client{
		Config:      cfg,
		completions: openai.NewChatCompletionService(cfg.Options()...),
	}, nil
}

// Model returns the model name queries run against.
func (c *Client) Model() string {
	return c.model
}

// Query sends a prompt plus one base64-encoded image and returns the raw
// model text.
func (c *Client) Query(ctx context.Context, prompt, imageB64 string) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(imageB64),
		}),
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),

		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	}

	completion, err := c.completions.New(ctx, body)
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty completion from server")
	}

	return completion.Choices[0].Message.Content, nil
}

// dataURL wraps the encoded image in a data URL. Prepared images are JPEG
// unless the PNG signature says otherwise.
func dataURL(imageB64 string) string {
	mime := "image/jpeg"
	if strings.HasPrefix(imageB64, "iVBORw0KGgo") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + imageB64
}
