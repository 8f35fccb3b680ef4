// Package prompt assembles LLM prompts under a token budget. Sections
// carry priorities; optional ones are dropped and mandatory ones
// truncated when the estimate would overflow.
package prompt

import (
	"sort"
	"strings"
)

// Priorities: 1 must appear (truncated if needed), 2 important,
// 3 optional.
const (
	PriorityMust      = 1
	PriorityImportant = 2
	PriorityOptional  = 3
)

// DefaultBudget is the context budget for the daily decision call.
const DefaultBudget = 8000

type Section struct {
	Name     string
	Content  string
	Priority int
}

// EstimateTokens approximates token usage for mixed Chinese/English
// text: roughly 1.5 tokens per CJK character and 1.3 per latin word
// (4 chars ≈ 1 word).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	cjk := 0
	total := 0
	for _, r := range text {
		total++
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		}
	}
	words := float64(total-cjk) / 4
	return int(float64(cjk)*1.5 + words*1.3)
}

// Build joins sections in priority order, dropping optional sections
// and truncating mandatory ones to stay inside maxTokens. Dropped
// section names are appended so the model knows what was omitted.
func Build(sections []Section, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultBudget
	}

	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var parts []string
	var dropped []string
	used := 0

	for _, s := range ordered {
		if s.Content == "" {
			continue
		}
		tokens := EstimateTokens(s.Content)
		remaining := maxTokens - used

		switch {
		case tokens <= remaining:
			parts = append(parts, s.Content)
			used += tokens

		case s.Priority == PriorityMust:
			ratio := float64(remaining) / float64(max(tokens, 1))
			runes := []rune(s.Content)
			cutLen := int(float64(len(runes)) * ratio)
			if cutLen > len(runes) {
				cutLen = len(runes)
			}
			cut := string(runes[:cutLen])
			// Prefer a newline boundary in the back half of the cut.
			if nl := strings.LastIndex(cut, "\n"); nl > len(cut)/2 {
				cut = cut[:nl]
			}
			parts = append(parts, cut+"\n[...已截断]")
			used = maxTokens

		default:
			dropped = append(dropped, s.Name)
		}
	}

	if len(dropped) > 0 {
		parts = append(parts, "\n[预算限制，已省略: "+strings.Join(dropped, ", ")+"]")
	}
	return strings.Join(parts, "\n\n")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
