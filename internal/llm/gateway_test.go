package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/config"
)

type fakeProvider struct {
	name  string
	calls []Request
	// responses consumed in order; the last one repeats.
	responses []func() (Response, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req Request) (Response, error) {
	f.calls = append(f.calls, req)
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx]()
}

func ok(text string) func() (Response, error) {
	return func() (Response, error) { return Response{Text: text, TokensUsed: 10}, nil }
}

func fail(msg string) func() (Response, error) {
	return func() (Response, error) { return Response{}, errors.New(msg) }
}

func testLLMConfig() config.LLMConfig {
	cfg := config.Default().LLM
	cfg.Gemini.APIKey = "g-key"
	cfg.Anthropic.APIKey = "a-key"
	return cfg
}

func newTestGateway(cfg config.LLMConfig, gemini, anthropic Provider) *Gateway {
	return &Gateway{
		cfg:       cfg,
		providers: map[string]Provider{"gemini": gemini, "anthropic": anthropic},
		log:       zerolog.Nop(),
		sleep:     func(time.Duration) {},
	}
}

func TestCompleteReturnsFirstSuccess(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){ok("分析完成")}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("unused")}}
	g := newTestGateway(testLLMConfig(), gemini, anthropic)

	resp, err := g.Complete(context.Background(), "sys", "user", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "分析完成", resp.Text)
	assert.Len(t, gemini.calls, 1)
	assert.Empty(t, anthropic.calls)
	assert.Equal(t, "gemini-2.5-pro", gemini.calls[0].Model)
	assert.Equal(t, 4096, gemini.calls[0].MaxTokens)
}

func TestCompleteRateLimitSwitchesProviderImmediately(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("google api error 429: resource_exhausted"),
	}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("回退成功")}}
	g := newTestGateway(testLLMConfig(), gemini, anthropic)

	resp, err := g.Complete(context.Background(), "sys", "user", "gemini-2.5-pro", 1000)
	require.NoError(t, err)
	assert.Equal(t, "回退成功", resp.Text)
	assert.Equal(t, "anthropic", resp.Provider)

	// No retries against the rate-limited provider: one attempt each.
	assert.Len(t, gemini.calls, 1)
	assert.Len(t, anthropic.calls, 1)
}

func TestCompleteRemapsModelTierOnFallback(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("429 too many requests"),
	}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("ok")}}
	g := newTestGateway(testLLMConfig(), gemini, anthropic)

	// The analysis-tier model maps to the fallback's analysis tier.
	_, err := g.Complete(context.Background(), "s", "u", "gemini-2.0-flash", 500)
	require.NoError(t, err)
	require.Len(t, anthropic.calls, 1)
	assert.Equal(t, "claude-haiku-4-5-20251001", anthropic.calls[0].Model)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("connection reset by peer"),
		fail("gemini api status 503: overloaded"),
		ok("第三次成功"),
	}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("unused")}}
	g := newTestGateway(testLLMConfig(), gemini, anthropic)

	resp, err := g.Complete(context.Background(), "s", "u", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "第三次成功", resp.Text)
	assert.Len(t, gemini.calls, 3)
	assert.Empty(t, anthropic.calls)
}

func TestCompleteAuthErrorAbortsChain(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("401 unauthorized: invalid api key"),
	}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("unused")}}
	g := newTestGateway(testLLMConfig(), gemini, anthropic)

	_, err := g.Complete(context.Background(), "s", "u", "", 0)
	require.Error(t, err)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, CategoryAuth, lerr.Category)
	assert.Empty(t, anthropic.calls)
}

func TestCompleteNoFallbackWithoutKey(t *testing.T) {
	cfg := testLLMConfig()
	cfg.Anthropic.APIKey = ""
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("429 rate limit"),
	}}
	anthropic := &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("unused")}}
	g := newTestGateway(cfg, gemini, anthropic)

	_, err := g.Complete(context.Background(), "s", "u", "", 0)
	require.Error(t, err)
	assert.Empty(t, anthropic.calls)
}

func TestCompleteExhaustsRetriesAndReturnsLastError(t *testing.T) {
	cfg := testLLMConfig()
	cfg.EnableProviderFallback = false
	gemini := &fakeProvider{name: "gemini", responses: []func() (Response, error){
		fail("network unreachable"),
	}}
	g := newTestGateway(cfg, gemini, &fakeProvider{name: "anthropic", responses: []func() (Response, error){ok("x")}})

	_, err := g.Complete(context.Background(), "s", "u", "", 0)
	require.Error(t, err)
	assert.Len(t, gemini.calls, cfg.MaxRetries)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, CategoryNetwork, lerr.Category)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Category
	}{
		{"status 429", "api returned 429", CategoryRateLimit},
		{"status 401", "got 401 from server", CategoryAuth},
		{"status 403", "got 403 forbidden", CategoryAuth},
		{"status 402", "got 402 payment required", CategoryBilling},
		{"timeout keyword", "request timeout after 120s", CategoryTimeout},
		{"deadline", "context deadline exceeded", CategoryTimeout},
		{"json keyword", "invalid json in body", CategoryFormat},
		{"rate limit words", "rate limit exceeded for quota", CategoryRateLimit},
		{"quota", "quota exhausted", CategoryRateLimit},
		{"api key", "invalid api key provided", CategoryAuth},
		{"context overflow", "context length exceeded maximum", CategoryContextOverflow},
		{"connection", "connection refused", CategoryNetwork},
		{"5xx", "upstream returned 503", CategoryNetwork},
		{"unknown", "something odd happened", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lerr := Classify(errors.New(tt.msg), "gemini", "m")
			assert.Equal(t, tt.want, lerr.Category)
		})
	}
}

func TestClassifyRetryable(t *testing.T) {
	assert.False(t, Classify(errors.New("401 bad key"), "p", "m").Retryable())
	assert.False(t, Classify(errors.New("402 payment required"), "p", "m").Retryable())
	assert.True(t, Classify(errors.New("429 slow down"), "p", "m").Retryable())
	assert.True(t, Classify(errors.New("weird"), "p", "m").Retryable())
}

func TestClassifyTruncatesLongMessages(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	lerr := Classify(errors.New(string(long)), "p", "m")
	assert.Len(t, lerr.Message, 500)
}

func TestParseJSONPlain(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, ParseJSON(`{"a": 1}`, &out))
	assert.Equal(t, 1.0, out["a"])
}

func TestParseJSONStripsCodeFence(t *testing.T) {
	text := "```json\n{\"sentiment\": \"bullish\"}\n```"
	var out MarketAssessment
	require.NoError(t, ParseJSON(text, &out))
	assert.Equal(t, "bullish", out.Sentiment)
}

func TestParseJSONExtractsEmbeddedObject(t *testing.T) {
	text := "以下是我的分析:\n{\"portfolio_advice\": \"保持现金\"}\n希望有帮助。"
	var out Decision
	require.NoError(t, ParseJSON(text, &out))
	assert.Equal(t, "保持现金", out.PortfolioAdvice)
}

func TestParseJSONFailureIsFormatError(t *testing.T) {
	var out map[string]interface{}
	err := ParseJSON("not json at all", &out)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, CategoryFormat, lerr.Category)
}

func TestNormalizeClampsFields(t *testing.T) {
	d := Decision{
		MarketAssessment: MarketAssessment{Sentiment: "euphoric"},
		Recommendations: []FundRecommendation{
			{FundCode: "110011", Action: "yolo", Confidence: 1.7},
			{FundCode: "005827", Action: "sell", Confidence: -0.2},
		},
	}
	d.Normalize()
	assert.Equal(t, "neutral", d.MarketAssessment.Sentiment)
	assert.Equal(t, "hold", d.Recommendations[0].Action)
	assert.Equal(t, 1.0, d.Recommendations[0].Confidence)
	assert.Equal(t, "sell", d.Recommendations[1].Action)
	assert.Equal(t, 0.0, d.Recommendations[1].Confidence)
}
