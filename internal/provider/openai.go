package provider

import (
	"context"
	"errors"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const openaiMaxRetries = 3

// ChatCompletionClient is the narrow slice of the OpenAI client the
// provider depends on.
type ChatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	client     ChatCompletionClient
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIProvider creates an OpenAI provider. The API key is required:
// without it every relay call would fail, so construction fails instead.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	return NewOpenAIProviderFromClient(openai.NewClient(apiKey)), nil
}

// NewOpenAIProviderFromClient creates a provider from an existing client.
// This is useful for testing with a fake client.
func NewOpenAIProviderFromClient(client ChatCompletionClient) *OpenAIProvider {
	return &OpenAIProvider{
		client:     client,
		maxRetries: openaiMaxRetries,
		retryDelay: time.Second,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends the message sequence to the chat completions API.
// Rate-limit and server-side failures are retried with exponential
// backoff, bounded by openaiMaxRetries.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * p.retryDelay
			select {
			case <-ctx.Done():
				return nil, NewProviderError(p.Name(), ErrorCodeTimeout, ctx.Err().Error(), ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
		if err != nil {
			perr := p.wrapError(err)
			if perr.IsRetryable {
				lastErr = perr
				continue
			}
			return nil, perr
		}

		if len(resp.Choices) == 0 {
			return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no choices in response", nil)
		}

		choice := resp.Choices[0]
		return &CompletionResponse{
			Content:      choice.Message.Content,
			FinishReason: string(choice.FinishReason),
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	}

	return nil, lastErr
}

// wrapError normalizes go-openai errors into ProviderError.
func (p *OpenAIProvider) wrapError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := NewProviderError(p.Name(), codeForStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
		perr.StatusCode = apiErr.HTTPStatusCode
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr := NewProviderError(p.Name(), codeForStatus(reqErr.HTTPStatusCode), err.Error(), err)
		perr.StatusCode = reqErr.HTTPStatusCode
		return perr
	}

	// Transport-level failure (connection refused, timeout, ...).
	return NewProviderError(p.Name(), ErrorCodeTimeout, err.Error(), err)
}

func codeForStatus(status int) string {
	switch status {
	case 400:
		return ErrorCodeInvalidRequest
	case 401:
		return ErrorCodeAuthentication
	case 404:
		return ErrorCodeModelNotFound
	case 429:
		return ErrorCodeRateLimit
	default:
		if status >= 500 {
			return ErrorCodeServerError
		}
		return ErrorCodeUnknown
	}
}
