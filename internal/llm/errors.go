package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category buckets provider failures into retry behaviors. Rate
// limits switch providers immediately; auth and billing failures
// abort the whole chain.
type Category string

const (
	CategoryRateLimit       Category = "rate_limit"
	CategoryAuth            Category = "auth"
	CategoryBilling         Category = "billing"
	CategoryTimeout         Category = "timeout"
	CategoryFormat          Category = "format"
	CategoryContextOverflow Category = "context_overflow"
	CategoryNetwork         Category = "network"
	CategoryUnknown         Category = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Category   Category
	Provider   string
	Model      string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	code := ""
	if e.StatusCode != 0 {
		code = fmt.Sprintf(" [%d]", e.StatusCode)
	}
	return fmt.Sprintf("[%s/%s] %s%s: %s", e.Provider, e.Model, e.Category, code, e.Message)
}

// Retryable reports whether a fresh attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	return e.Category != CategoryAuth && e.Category != CategoryBilling
}

var statusCodeRe = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// Classify wraps an arbitrary error into a categorized *Error.
// Already-classified errors pass through with provider/model filled in
// if missing.
func Classify(err error, provider, model string) *Error {
	if lerr, ok := err.(*Error); ok {
		if lerr.Provider == "" {
			lerr.Provider = provider
		}
		if lerr.Model == "" {
			lerr.Model = model
		}
		return lerr
	}

	msg := err.Error()
	status := extractStatusCode(msg)
	category := categorize(msg, status)

	if len(msg) > 500 {
		msg = msg[:500]
	}
	return &Error{
		Category:   category,
		Provider:   provider,
		Model:      model,
		Message:    msg,
		StatusCode: status,
	}
}

func extractStatusCode(msg string) int {
	m := statusCodeRe.FindString(msg)
	if m == "" {
		return 0
	}
	code, _ := strconv.Atoi(m)
	return code
}

func categorize(msg string, status int) Category {
	switch status {
	case 429:
		return CategoryRateLimit
	case 401, 403:
		return CategoryAuth
	case 402:
		return CategoryBilling
	}

	lower := strings.ToLower(msg)

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return CategoryTimeout
	}
	if strings.Contains(lower, "json") {
		return CategoryFormat
	}
	if strings.Contains(lower, "rate") && strings.Contains(lower, "limit") {
		return CategoryRateLimit
	}
	if strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted") {
		return CategoryRateLimit
	}
	if strings.Contains(lower, "api key") || strings.Contains(lower, "permission") ||
		strings.Contains(lower, "unauthorized") {
		return CategoryAuth
	}
	if strings.Contains(lower, "context") &&
		(strings.Contains(lower, "length") || strings.Contains(lower, "overflow") ||
			strings.Contains(lower, "too long")) {
		return CategoryContextOverflow
	}
	for _, kw := range []string{"connection", "network", "dns", "refused", "reset"} {
		if strings.Contains(lower, kw) {
			return CategoryNetwork
		}
	}
	if status >= 500 && status < 600 {
		return CategoryNetwork
	}
	return CategoryUnknown
}
