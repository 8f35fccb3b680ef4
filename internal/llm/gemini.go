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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Google Generative Language REST API.
type GeminiClient struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	thinkingBudget int
	enableThinking bool
}

func NewGemini(apiKey string, enableThinking bool, thinkingBudget int) *GeminiClient {
	return &GeminiClient{
		apiKey:         apiKey,
		baseURL:        geminiBaseURL,
		httpClient:     newHTTPClient(),
		thinkingBudget: thinkingBudget,
		enableThinking: enableThinking,
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens"`
	Temperature     float64               `json:"temperature"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &Error{
			Category: CategoryAuth,
			Provider: c.Name(),
			Model:    req.Model,
			Message:  "GEMINI_API_KEY 未设置",
		}
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.User}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     0.7,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	// Thinking is only supported on the 2.5 family.
	if c.enableThinking && strings.Contains(req.Model, "2.5") {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: c.thinkingBudget}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, Classify(err, c.Name(), req.Model)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

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
			fmt.Errorf("gemini api status %d: %s", httpResp.StatusCode, truncate(string(raw), 300)),
			c.Name(), req.Model)
	}

	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, Classify(fmt.Errorf("decode gemini response: %w", err), c.Name(), req.Model)
	}
	if resp.Error != nil {
		return Response{}, Classify(
			fmt.Errorf("gemini api error %d: %s", resp.Error.Code, resp.Error.Message),
			c.Name(), req.Model)
	}

	text := ""
	if len(resp.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		text = sb.String()
	}
	return Response{Text: text, TokensUsed: resp.UsageMetadata.TotalTokenCount}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
