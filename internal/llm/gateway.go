package llm

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/config"
)

// Gateway is the single entry point for LLM calls. It retries with
// exponential backoff, switches provider on rate limits, and maps the
// requested model to the fallback provider's equivalent tier.
type Gateway struct {
	cfg       config.LLMConfig
	providers map[string]Provider
	log       zerolog.Logger
	sleep     func(time.Duration)
}

func NewGateway(cfg config.LLMConfig, anthropicBaseURL string, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg: cfg,
		providers: map[string]Provider{
			"gemini": NewGemini(cfg.Gemini.APIKey, cfg.EnableThinking, cfg.Gemini.ThinkingBudget),
			"anthropic": NewAnthropic(cfg.Anthropic.APIKey, anthropicBaseURL,
				cfg.EnableThinking, cfg.Anthropic.ThinkingBudget, cfg.Anthropic.CriticalThinkingBudget),
		},
		log:   log.With().Str("component", "llm").Logger(),
		sleep: time.Sleep,
	}
}

// AnalysisModel returns the cheap-tier model of the active provider.
func (g *Gateway) AnalysisModel() string {
	return g.cfg.ProviderConfig("").AnalysisModel
}

// DecisionModel returns the default decision-tier model.
func (g *Gateway) DecisionModel() string {
	return g.cfg.ProviderConfig("").DecisionModel
}

// CriticalModel returns the top-tier model used for the core
// investment decision and the debate verdict.
func (g *Gateway) CriticalModel() string {
	m := g.cfg.ProviderConfig("").CriticalModel
	if m == "" {
		m = g.DecisionModel()
	}
	return m
}

// Complete runs one call through the provider chain. model may be
// empty, meaning the decision model; maxTokens <= 0 uses the config
// default.
func (g *Gateway) Complete(ctx context.Context, system, user, model string, maxTokens int) (Response, error) {
	primary := g.cfg.Provider
	if model == "" {
		model = g.DecisionModel()
	}
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}

	chain := []string{primary}
	if g.cfg.EnableProviderFallback {
		fallback := g.cfg.FallbackProvider()
		if g.cfg.ProviderConfig(fallback).APIKey != "" {
			chain = append(chain, fallback)
		}
	}

	var lastErr *Error

	for _, name := range chain {
		provider, ok := g.providers[name]
		if !ok {
			continue
		}
		currentModel := g.resolveModel(model, name, primary)

		for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
			resp, err := provider.Complete(ctx, Request{
				System:    system,
				User:      user,
				Model:     currentModel,
				MaxTokens: maxTokens,
			})
			if err == nil {
				resp.Provider = name
				resp.Model = currentModel
				return resp, nil
			}

			lerr := Classify(err, name, currentModel)
			lastErr = lerr

			if !lerr.Retryable() {
				g.log.Error().Str("provider", name).Str("model", currentModel).
					Str("category", string(lerr.Category)).Msg("llm call failed permanently")
				return Response{}, lerr
			}

			if lerr.Category == CategoryRateLimit {
				g.log.Warn().Str("provider", name).Str("model", currentModel).
					Msg("llm rate limited, switching provider")
				break
			}

			delay := time.Duration(math.Min(
				math.Pow(float64(g.cfg.RetryBackoffBase), float64(attempt)),
				float64(g.cfg.RetryBackoffMax))) * time.Second
			g.log.Warn().Str("provider", name).Str("category", string(lerr.Category)).
				Int("attempt", attempt+1).Dur("backoff", delay).Msg("llm call failed, retrying")
			g.sleep(delay)
		}
	}

	if lastErr != nil {
		return Response{}, lastErr
	}
	return Response{}, &Error{
		Category: CategoryUnknown,
		Provider: primary,
		Model:    model,
		Message:  "所有 LLM Provider 均不可用",
	}
}

// resolveModel maps a model to the target provider's same tier, so a
// fallback from gemini-2.5-pro lands on the other provider's decision
// model rather than an unknown name.
func (g *Gateway) resolveModel(model, target, original string) string {
	if target == original {
		return model
	}
	from := g.cfg.ProviderConfig(original)
	to := g.cfg.ProviderConfig(target)

	switch model {
	case from.AnalysisModel:
		return orDefault(to.AnalysisModel, model)
	case from.CriticalModel:
		return orDefault(to.CriticalModel, model)
	case from.DecisionModel:
		return orDefault(to.DecisionModel, model)
	}
	return orDefault(to.DecisionModel, model)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
