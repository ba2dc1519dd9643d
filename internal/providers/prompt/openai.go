package prompt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Timeout      time.Duration
	OnWarning    func(reason, detail string)
}

// chatClient is the subset of *openai.Client used by the refiner.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIRefiner struct {
	client  chatClient
	model   string
	timeout time.Duration
}

const openAIDefaultTimeout = 20 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

const refineTemperature = 0.7

var openAIModelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
	"gpt-4":         "gpt-4",
}

var openAIModelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
	"gpt4":                   "gpt-4",
}

// refineGuard is appended to every system instruction so the completion is a
// bare prompt rather than a conversation.
const refineGuard = "Respond with a single image generation prompt only, without preamble, quotes or markdown."

func NewOpenAIRefiner(opts OpenAIOptions) (*OpenAIRefiner, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	cfg.OrgID = strings.TrimSpace(opts.Organization)
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return newOpenAIRefiner(openai.NewClientWithConfig(cfg), opts), nil
}

func newOpenAIRefiner(client chatClient, opts OpenAIOptions) *OpenAIRefiner {
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = openAIDefaultTimeout
	}
	return &OpenAIRefiner{client: client, model: normalizedModel, timeout: timeout}
}

// Refine sends the style instruction as the system message and the raw
// prompt as the user message. The completion text becomes the new prompt.
func (o *OpenAIRefiner) Refine(ctx context.Context, req RefineRequest) (*RefineResponse, error) {
	userPrompt := strings.TrimSpace(req.Prompt)
	if userPrompt == "" {
		return nil, &RefineError{Reason: "empty_prompt"}
	}
	system := refineGuard
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		system = instr + "\n\n" + refineGuard
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: refineTemperature,
		User:        req.RequestID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, &RefineError{Reason: requestFailureReason(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &RefineError{Reason: "empty_choices", Err: errors.New("no choices")}
	}
	text := cleanCompletion(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, &RefineError{Reason: "empty_response", Err: errors.New("empty response")}
	}
	return &RefineResponse{Prompt: text, Provider: openAIProviderName}, nil
}

func requestFailureReason(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return fmt.Sprintf("http_%d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Sprintf("http_%d", reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "http_request"
}

var _ Refiner = (*OpenAIRefiner)(nil)

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		if canonical, ok := openAIModelCanonical[alias]; ok {
			return canonical, "alias"
		}
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
