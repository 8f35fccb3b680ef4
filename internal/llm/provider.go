package llm

import (
	"context"
	"net/http"
	"time"
)

// Request is one chat completion call.
type Request struct {
	System    string
	User      string
	Model     string
	MaxTokens int
}

// Response carries the text and token accounting of one call, plus
// the provider/model pair that actually served it (the gateway may
// have fallen back from the requested one).
type Response struct {
	Text       string
	TokensUsed int
	Provider   string
	Model      string
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
