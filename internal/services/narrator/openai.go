package narrator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 90 * time.Second
)

// OpenAIConfig holds configuration for the OpenAI narrator
type OpenAIConfig struct {
	// APIKey is the user's key; an empty key fails every call with
	// missing_user_api_key
	APIKey string

	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAI narrates turns with the chat completions API
type OpenAI struct {
	client      openai.Client
	hasKey      bool
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAI creates an OpenAI narrator
func NewOpenAI(cfg *OpenAIConfig) (*OpenAI, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	// A completion is billed, so the client never retries one
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		hasKey:      strings.TrimSpace(cfg.APIKey) != "",
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// Narrate sends the request as one chat completion
func (o *OpenAI) Narrate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &Error{Kind: KindAPIError, Message: "request cannot be nil"}
	}
	if !o.hasKey {
		return nil, &Error{Kind: KindMissingUserAPIKey, Message: "no API key configured"}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: buildMessages(req),
	}
	if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		nerr := classify(err)
		o.logger.Warn("narrator call failed",
			zap.String("kind", string(nerr.Kind)),
			zap.String("message", nerr.Message),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, nerr
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{Kind: KindAPIError, Message: "completion has no choices"}
	}

	o.logger.Debug("narrator call completed",
		zap.String("model", completion.Model),
		zap.Int64("total_tokens", completion.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Response{Text: completion.Choices[0].Message.Content}, nil
}

func buildMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
			continue
		}
		msgs = append(msgs, openai.UserMessage(m.Content))
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}

// classify maps a client error onto a narrator error kind. Anything that
// never reached the API is a network failure.
func classify(err error) *Error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}

	code := strings.ToLower(apiErr.Code)
	errType := strings.ToLower(apiErr.Type)
	nerr := &Error{Kind: KindAPIError, Message: apiErr.Message, Err: err}

	switch {
	case code == "insufficient_quota" || errType == "insufficient_quota":
		nerr.Kind = KindQuotaExhausted
	case apiErr.StatusCode == http.StatusUnauthorized || code == "invalid_api_key":
		nerr.Kind = KindMissingUserAPIKey
	}
	return nerr
}
