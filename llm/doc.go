// Package llm is a small chat-completion client for operators that call a
// language model.
//
// A [Dialect] maps the universal request and response types onto one
// provider's HTTP format. An [Adapter] pairs a dialect with an HTTP client
// and retries transient failures. Providers are built by name:
//
//	p, err := llm.New(llm.Config{
//	    Dialect: "openai",
//	    BaseURL: "https://api.example.com",
//	    Model:   "glm4-9b",
//	})
//	text, err := llm.Complete(ctx, p, "You are a helpful assistant.", prompt)
//
// The "openai" and "ollama" dialects are registered by default. Tests and
// embedding programs may register their own with [Register].
package llm
