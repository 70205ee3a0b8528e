// Package anyllm implements the generator.Provider interface on top of
// github.com/mozilla-ai/any-llm-go, a unified multi-provider client
// that supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral,
// Groq, and local llama.cpp servers.
//
// Usage:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	reply, err := p.Generate(ctx, generator.Request{Query: "我要一份蛋餅"})
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator"
)

// systemPrompt instructs the model to act as the ordering assistant and
// fixes the reply format: a fenced sys block with machine directives
// followed by a fenced cus block with the spoken reply.
const systemPrompt = `你是一間早餐店的點餐助理,負責透過語音協助顧客點餐。
請根據「菜單資訊」回答顧客問題並處理點餐需求。不在菜單上的品項要婉拒並推薦相近品項。

每次回覆必須包含兩個區塊,順序固定:

` + "```sys" + `
intent: <本輪意圖標籤,例如 order、ask、end>
+ <菜單編號> <數量> <客製化需求,沒有填 無>
- <訂單明細編號> <數量>
` + "```" + `

` + "```cus" + `
<要唸給顧客聽的回覆,口語、簡短>
` + "```" + `

規則:
- 新增品項用 "+",一行一項,編號取自菜單資訊。
- 刪除品項用 "-",編號取自「目前訂單」裡的明細編號,不是菜單編號。
- 沒有異動時 sys 區塊只寫 intent 那一行。
- 顧客說結帳或不再點餐時 intent 填 end。
- 飲料要大杯時把「大杯」寫進客製化需求。`

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature. Defaults to 0.3 to
// keep directive output stable.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the reply length. Defaults to 1024.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// Provider implements generator.Provider by wrapping any-llm-go.
type Provider struct {
	backend     anyllmlib.Provider
	model       string
	temperature float64
	maxTokens   int
}

var _ generator.Provider = (*Provider)(nil)

// New creates a Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp". model is the model to use
// (e.g., "gpt-4o-mini"). backendOpts are any-llm-go options such as
// anyllmlib.WithAPIKey or anyllmlib.WithBaseURL; without an API key
// option the backend falls back to its environment variable.
func New(providerName, model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	p := &Provider{
		backend:     backend,
		model:       model,
		temperature: 0.3,
		maxTokens:   1024,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp", providerName)
	}
}

// Generate produces one assistant reply for the given turn.
func (p *Provider) Generate(ctx context.Context, req generator.Request) (string, error) {
	params := p.buildParams(req)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	return resp.Choices[0].Message.ContentString(), nil
}

// buildParams assembles the message list: system prompt with menu
// context and order state appended, then history, then the query.
func (p *Provider) buildParams(req generator.Request) anyllmlib.CompletionParams {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	if req.MenuContext != "" {
		sys.WriteString("\n\n菜單資訊:\n")
		sys.WriteString(req.MenuContext)
	}
	if req.OrderState != "" {
		sys.WriteString("\n\n目前訂單:\n")
		sys.WriteString(req.OrderState)
	}

	messages := make([]anyllmlib.Message, 0, len(req.History)+2)
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleSystem,
		Content: sys.String(),
	})
	for _, m := range req.History {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Query,
	})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.temperature != 0 {
		t := p.temperature
		params.Temperature = &t
	}
	if p.maxTokens > 0 {
		mt := p.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
