package provider

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// fakeChatClient returns canned responses and errors in order.
type fakeChatClient struct {
	responses []openai.ChatCompletionResponse
	errors    []error
	calls     int
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errors) && f.errors[i] != nil {
		return openai.ChatCompletionResponse{}, f.errors[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return openai.ChatCompletionResponse{}, errors.New("no canned response")
}

func newTestProvider(client ChatCompletionClient) *OpenAIProvider {
	p := NewOpenAIProviderFromClient(client)
	p.retryDelay = 0
	return p
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("")
	if err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	client := &fakeChatClient{
		responses: []openai.ChatCompletionResponse{{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "olá!"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		}},
	}
	p := newTestProvider(client)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: "oi"}},
		Model:       "gpt-5",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "olá!" {
		t.Errorf("expected content %q, got %q", "olá!", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish reason stop, got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	client := &fakeChatClient{
		responses: []openai.ChatCompletionResponse{{}},
	}
	p := newTestProvider(client)

	_, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-5"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Code != ErrorCodeEmptyResponse {
		t.Errorf("expected code %s, got %s", ErrorCodeEmptyResponse, perr.Code)
	}
}

func TestOpenAIProvider_AuthErrorNotRetried(t *testing.T) {
	client := &fakeChatClient{
		errors: []error{&openai.APIError{HTTPStatusCode: 401, Message: "invalid key"}},
	}
	p := newTestProvider(client)

	_, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-5"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Code != ErrorCodeAuthentication {
		t.Errorf("expected code %s, got %s", ErrorCodeAuthentication, perr.Code)
	}
	if client.calls != 1 {
		t.Errorf("auth error should not be retried, got %d calls", client.calls)
	}
}

func TestOpenAIProvider_ServerErrorRetried(t *testing.T) {
	client := &fakeChatClient{
		errors: []error{
			&openai.APIError{HTTPStatusCode: 500, Message: "boom"},
			&openai.APIError{HTTPStatusCode: 500, Message: "boom"},
		},
		responses: []openai.ChatCompletionResponse{{}, {}, {
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "recovered"},
			}},
		}},
	}
	p := newTestProvider(client)

	resp, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-5"})
	if err != nil {
		t.Fatalf("Complete failed after retries: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected recovered content, got %q", resp.Content)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
}

func TestOpenAIProvider_RetriesExhausted(t *testing.T) {
	client := &fakeChatClient{
		errors: []error{
			&openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			&openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			&openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
		},
	}
	p := newTestProvider(client)

	_, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-5"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Code != ErrorCodeRateLimit {
		t.Errorf("expected code %s, got %s", ErrorCodeRateLimit, perr.Code)
	}
	if client.calls != openaiMaxRetries {
		t.Errorf("expected %d calls, got %d", openaiMaxRetries, client.calls)
	}
}

func TestCodeForStatus(t *testing.T) {
	cases := map[int]string{
		400: ErrorCodeInvalidRequest,
		401: ErrorCodeAuthentication,
		404: ErrorCodeModelNotFound,
		429: ErrorCodeRateLimit,
		500: ErrorCodeServerError,
		503: ErrorCodeServerError,
		418: ErrorCodeUnknown,
	}
	for status, want := range cases {
		if got := codeForStatus(status); got != want {
			t.Errorf("status %d: expected %s, got %s", status, want, got)
		}
	}
}
