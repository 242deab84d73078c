package llm

import (
	"encoding/json"
	"fmt"
)

// Dialect maps the universal request and response types to one provider's
// HTTP format.
type Dialect interface {
	// Name returns the dialect identifier.
	Name() string
	// ChatPath returns the chat completion endpoint path.
	ChatPath() string
	// HealthPath returns the health endpoint path. Empty means none.
	HealthPath() string
	// BuildRequest maps req to the provider's JSON request body.
	BuildRequest(req CompletionRequest) (any, error)
	// ParseResponse maps the provider's JSON response body.
	ParseResponse(body []byte) (*CompletionResponse, error)
}

// OpenAIDialect speaks the OpenAI chat completions format, which most
// hosted and self-hosted inference servers accept.
type OpenAIDialect struct{}

func (OpenAIDialect) Name() string       { return "openai" }
func (OpenAIDialect) ChatPath() string   { return "/v1/chat/completions" }
func (OpenAIDialect) HealthPath() string { return "/v1/models" }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (OpenAIDialect) BuildRequest(req CompletionRequest) (any, error) {
	return openAIRequest{
		Model:       req.Model,
		Messages:    req.messages(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

func (OpenAIDialect) ParseResponse(body []byte) (*CompletionResponse, error) {
	var r openAIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	return &CompletionResponse{Content: r.Choices[0].Message.Content, Model: r.Model, Usage: r.Usage}, nil
}

// OllamaDialect speaks Ollama's native chat API.
type OllamaDialect struct{}

func (OllamaDialect) Name() string       { return "ollama" }
func (OllamaDialect) ChatPath() string   { return "/api/chat" }
func (OllamaDialect) HealthPath() string { return "/api/tags" }

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func (OllamaDialect) BuildRequest(req CompletionRequest) (any, error) {
	opts := map[string]any{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return ollamaRequest{Model: req.Model, Messages: req.messages(), Options: opts}, nil
}

func (OllamaDialect) ParseResponse(body []byte) (*CompletionResponse, error) {
	var r ollamaResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content: r.Message.Content,
		Model:   r.Model,
		Usage: Usage{
			PromptTokens:     r.PromptEvalCount,
			CompletionTokens: r.EvalCount,
			TotalTokens:      r.PromptEvalCount + r.EvalCount,
		},
	}, nil
}
