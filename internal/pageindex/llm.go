package pageindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/itsmostafa/resilindex/internal/retry"
)

// ErrMissingAPIKey is returned when no OpenAI API key is configured.
var ErrMissingAPIKey = errors.New("openai api key not set (config openai.api_key or OPENAI_API_KEY)")

// LLMProvider is the chat model used for every reasoning step.
type LLMProvider interface {
	// Complete sends a single user prompt and returns the response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithHistory sends a conversation and returns the reply.
	CompleteWithHistory(ctx context.Context, messages []Message) (string, error)

	// Model returns the model identifier being used.
	Model() string
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIProvider implements LLMProvider with the OpenAI chat completions API.
// The SDK's own retries are disabled; callers wrap calls in retry.Do.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model not set")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Model returns the model identifier.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends a prompt and returns the response.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return p.CompleteWithHistory(ctx, []Message{{Role: "user", Content: prompt}})
}

// CompleteWithHistory sends a conversation and returns the first choice.
func (p *OpenAIProvider) CompleteWithHistory(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(0),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", retry.Transient(errors.New("openai: response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapOpenAIError turns an API error into a retry.StatusError so the retry
// wrapper can classify it by status code. Transport errors pass through.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	statusErr := &retry.StatusError{
		StatusCode: apiErr.StatusCode,
		Message:    "openai: " + apiErr.Message,
		Err:        err,
	}
	if apiErr.Response != nil {
		statusErr.RetryAfterDelay = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	return statusErr
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// ExtractJSON extracts and parses JSON from an LLM response.
// It handles responses wrapped in ```json ... ``` blocks.
func ExtractJSON[T any](content string) (T, error) {
	var result T

	content = strings.TrimSpace(content)
	if startIdx := strings.Index(content, "```json"); startIdx != -1 {
		startIdx += 7
		if endIdx := strings.LastIndex(content, "```"); endIdx > startIdx {
			content = content[startIdx:endIdx]
		}
	} else if startIdx := strings.Index(content, "```"); startIdx != -1 {
		startIdx += 3
		if endIdx := strings.LastIndex(content[startIdx:], "```"); endIdx != -1 {
			content = content[startIdx : startIdx+endIdx]
		}
	}

	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "None", "null")

	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Models often leave trailing commas
		content = strings.ReplaceAll(content, ",]", "]")
		content = strings.ReplaceAll(content, ",}", "}")
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			return result, fmt.Errorf("failed to parse JSON: %w (content: %s)", err, truncate(content, 200))
		}
	}

	return result, nil
}

// completeJSON runs a prompt and decodes the JSON answer. A reply that
// cannot be decoded is treated as transient: asking again usually helps.
func completeJSON[T any](ctx context.Context, llm LLMProvider, prompt string) (T, error) {
	response, err := llm.Complete(ctx, prompt)
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := ExtractJSON[T](response)
	if err != nil {
		return result, retry.Transient(err)
	}
	return result, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
