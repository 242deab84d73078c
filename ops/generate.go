package ops

import (
	"context"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/llm"
	"github.com/kbukum/dataflow/op"
)

const (
	cosmopediaSystem = "你是一个乐于助人的助手"
	cosmopediaPrompt = `网页摘录：“{web_text}”。
以 WikiHow 的风格写一篇长而非常详细的教程，教程与此网页摘录有相关性。
教程中需要包括对每个步骤的深入解释以及它如何帮助实现预期结果。你可以自由补充其他相关知识。
确保清晰性和实用性，让读者能够轻松遵循教程完成任务。内容中不应包含广告或涉及隐私的信息。
不要使用图像。请直接开始撰写教程。
`
	truncationMark = "......"
)

// cosmopedia asks a model for a tutorial seeded by each record's title and
// text and stores the answer in target.
type cosmopedia struct {
	key      string
	target   string
	maxChars int
	system   string
	prompt   string
	provider llm.Provider
}

func (c cosmopedia) Process(ctx context.Context, r dataset.Record) (dataset.Record, error) {
	for _, alt := range []string{"content", "md"} {
		if r[c.key] != nil {
			break
		}
		if v := r[alt]; v != nil {
			r[c.key] = v
			delete(r, alt)
		}
	}
	text, err := textOf(r, c.key)
	if err != nil {
		return nil, err
	}
	title, _ := r["title"].(string)
	answer, err := llm.Complete(ctx, c.provider, c.system, c.buildPrompt(title, text))
	if err != nil {
		return nil, err
	}
	r[c.target] = answer
	return r, nil
}

// buildPrompt joins title and text, cuts the excerpt to maxChars runes and
// places it in the template.
func (c cosmopedia) buildPrompt(title, text string) string {
	excerpt := title + "\n" + text
	if utf8.RuneCountInString(excerpt) > c.maxChars {
		excerpt = string([]rune(excerpt)[:c.maxChars]) + truncationMark
	}
	return strings.ReplaceAll(c.prompt, "{web_text}", excerpt)
}

type cosmopediaParams struct {
	Dialect      string  `mapstructure:"dialect" validate:"required"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	APIKeyEnv    string  `mapstructure:"api_key_env"`
	Temperature  float64 `mapstructure:"temperature" validate:"gte=0"`
	MaxTokens    int     `mapstructure:"max_tokens" validate:"gte=0"`
	Timeout      string  `mapstructure:"timeout"`
	MaxChars     int     `mapstructure:"max_chars" validate:"gte=1"`
	TargetKey    string  `mapstructure:"target_key" validate:"required"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Prompt       string  `mapstructure:"prompt_template" validate:"required,contains={web_text}"`
}

func newCosmopedia(args map[string]any) (op.Operator, error) {
	p := cosmopediaParams{
		Dialect:      "openai",
		APIKeyEnv:    "DATAFLOW_LLM_API_KEY",
		Timeout:      "120s",
		MaxChars:     800,
		TargetKey:    "data",
		SystemPrompt: cosmopediaSystem,
		Prompt:       cosmopediaPrompt,
	}
	const name = "make_cosmopedia_mapper"
	base, err := newBase(name, op.KindMapper, args, &p)
	if err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return nil, errors.InvalidConfig(name+".timeout", err.Error())
	}
	cfg := llm.Config{
		Name:        name,
		Dialect:     p.Dialect,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     timeout,
	}
	if p.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(p.APIKeyEnv)
	}
	provider, err := llm.New(cfg)
	if err != nil {
		return nil, errors.InvalidConfig(name, err.Error())
	}
	return op.NewMapper(base, cosmopedia{
		key:      base.Options().TextKey,
		target:   p.TargetKey,
		maxChars: p.MaxChars,
		system:   p.SystemPrompt,
		prompt:   p.Prompt,
		provider: provider,
	}), nil
}

func generators() []builtin {
	return []builtin{
		{
			name: "make_cosmopedia_mapper",
			info: op.Info{Kind: op.KindMapper, Description: "Asks a language model for a WikiHow-style tutorial seeded by each record's title and text.", Params: []op.Param{
				textKeyParam,
				{Name: "dialect", Default: "openai", Doc: "provider format: openai or ollama"},
				{Name: "base_url", Default: "", Doc: "provider API base URL"},
				{Name: "model", Default: "", Doc: "model name"},
				{Name: "api_key_env", Default: "DATAFLOW_LLM_API_KEY", Doc: "environment variable holding the API key"},
				{Name: "temperature", Default: 0.0, Doc: "sampling temperature, 0 for provider default"},
				{Name: "max_tokens", Default: 0, Doc: "response length limit, 0 for provider default"},
				{Name: "timeout", Default: "120s", Doc: "per-request timeout"},
				{Name: "max_chars", Default: 800, Doc: "characters of title and text sent as the excerpt"},
				{Name: "target_key", Default: "data", Doc: "field receiving the generated tutorial"},
				{Name: "system_prompt", Default: cosmopediaSystem, Doc: "system message"},
				{Name: "prompt_template", Default: "(built-in)", Doc: "user message; {web_text} marks the excerpt"},
			}},
			factory: newCosmopedia,
		},
	}
}
