package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI calls the Chat Completions API. Images are delivered as a
// data-URL content part; audio is not natively supported and is replaced
// by a text note, with the result marked degraded.
type OpenAI struct {
	model  openai.ChatModel
	client *openai.Client
}

// NewOpenAI builds an adapter for the hosted chat backend. baseURL is
// empty in production; tests point it at a stub server.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	// The SDK retries on 429/5xx by default; retry policy belongs to the
	// caller, and each adapter method performs exactly one outbound call.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAI{
		model:  openai.ChatModel(model),
		client: &cli,
	}, nil
}

func (c *OpenAI) Kind() Kind { return KindOpenAI }

// Supports reports audio as supported; the adapter handles it with a
// documented degraded text substitution rather than failing.
func (c *OpenAI) Supports(Capability) bool { return true }

func (c *OpenAI) AnalyzeImage(ctx context.Context, data []byte, mime, prompt string) (Result, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	parts := []openai.ChatCompletionContentPartUnionParam{
		{OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt}},
		{OfImageURL: &openai.ChatCompletionContentPartImageParam{
			ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		}},
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		systemMessage(),
		{OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		}},
	}
	text, err := c.complete(ctx, messages)
	if err != nil {
		return Result{}, err
	}
	return newResult(text), nil
}

// AnalyzeAudio sends a text note describing the recording instead of the
// audio itself; the chat API has no inline audio input for these models.
func (c *OpenAI) AnalyzeAudio(ctx context.Context, _ []byte, mime, prompt string) (Result, error) {
	note := fmt.Sprintf("The user recorded audio (%s) that cannot be transcribed by this backend. "+
		"Respond helpfully to their request based on the prompt alone.\n\nPrompt: %s", mime, prompt)
	text, err := c.complete(ctx, userMessages(note))
	if err != nil {
		return Result{}, err
	}
	res := newResult(text)
	res.Degraded = true
	return res, nil
}

func (c *OpenAI) Chat(ctx context.Context, text string) (Result, error) {
	out, err := c.complete(ctx, userMessages(text))
	if err != nil {
		return Result{}, err
	}
	return newResult(out), nil
}

// complete performs the single outbound chat-completion call.
func (c *OpenAI) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	// Reasoning model families reject the temperature field outright, so
	// it must be absent, not defaulted.
	if !omitsTemperature(string(c.model)) {
		params.Temperature = openai.Float(defaultTemperature)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// omitsTemperature reports whether the model rejects the temperature
// parameter (o-series and the small gpt-5 variants only accept the
// server default).
func omitsTemperature(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5-mini", "gpt-5-nano"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func systemMessage() openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: openai.String(systemPrompt),
			},
		},
	}
}

func userMessages(text string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		systemMessage(),
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(text),
				},
			},
		},
	}
}
