package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com"

// AnthropicClient talks to the Anthropic Messages API. A proxy
// base URL may be supplied via ANTHROPIC_BASE_URL.
type AnthropicClient struct {
	apiKey                 string
	baseURL                string
	httpClient             *http.Client
	enableThinking         bool
	thinkingBudget         int
	criticalThinkingBudget int
}

func NewAnthropic(apiKey, baseURL string, enableThinking bool, thinkingBudget, criticalThinkingBudget int) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicClient{
		apiKey:                 apiKey,
		baseURL:                strings.TrimRight(baseURL, "/"),
		httpClient:             newHTTPClient(),
		enableThinking:         enableThinking,
		thinkingBudget:         thinkingBudget,
		criticalThinkingBudget: criticalThinkingBudget,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &Error{
			Category: CategoryAuth,
			Provider: c.Name(),
			Model:    req.Model,
			Message:  "ANTHROPIC_API_KEY 未设置",
		}
	}

	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.User}},
	}

	// Extended thinking on the larger tiers; the output cap grows by
	// the thinking budget so the answer is not squeezed out.
	if c.enableThinking && (strings.Contains(req.Model, "sonnet") || strings.Contains(req.Model, "opus")) {
		budget := c.thinkingBudget
		if strings.Contains(req.Model, "opus") {
			budget = c.criticalThinkingBudget
		}
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
		body.MaxTokens = req.MaxTokens + budget
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}

	if httpResp.StatusCode != http.StatusOK {
		return Response{}, Classify(
			fmt.Errorf("anthropic api status %d: %s", httpResp.StatusCode, truncate(string(raw), 300)),
			c.Name(), req.Model)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, Classify(fmt.Errorf("decode anthropic response: %w", err), c.Name(), req.Model)
	}
	if resp.Error != nil {
		return Response{}, Classify(
			fmt.Errorf("anthropic api error %s: %s", resp.Error.Type, resp.Error.Message),
			c.Name(), req.Model)
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return Response{
		Text:       text,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
