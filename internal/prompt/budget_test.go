package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))

	// 10 CJK chars → 15 tokens.
	assert.Equal(t, 15, EstimateTokens("当前市场状态为震荡行情"))

	// 8 latin chars → 2 words → 2 tokens.
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}

func TestEstimateTokensMixed(t *testing.T) {
	// 4 CJK + 8 latin: 4*1.5 + 2*1.3 = 8.6 → 8.
	assert.Equal(t, 8, EstimateTokens("市场状态RSI=70.5"))
}

func TestBuildJoinsWithinBudget(t *testing.T) {
	out := Build([]Section{
		{Name: "市场摘要", Content: "沪深300 当前处于震荡", Priority: PriorityMust},
		{Name: "持仓", Content: "易方达蓝筹 5000元", Priority: PriorityImportant},
	}, 8000)

	assert.Equal(t, "沪深300 当前处于震荡\n\n易方达蓝筹 5000元", out)
}

func TestBuildOrdersByPriorityStable(t *testing.T) {
	out := Build([]Section{
		{Name: "c", Content: "乙二", Priority: PriorityImportant},
		{Name: "a", Content: "甲", Priority: PriorityMust},
		{Name: "d", Content: "乙三", Priority: PriorityImportant},
		{Name: "b", Content: "丙", Priority: PriorityOptional},
	}, 8000)

	assert.Equal(t, "甲\n\n乙二\n\n乙三\n\n丙", out)
}

func TestBuildSkipsEmptySections(t *testing.T) {
	out := Build([]Section{
		{Name: "a", Content: "内容", Priority: PriorityMust},
		{Name: "b", Content: "", Priority: PriorityMust},
	}, 8000)
	assert.Equal(t, "内容", out)
}

func TestBuildDropsOptionalOverBudget(t *testing.T) {
	big := strings.Repeat("市场情报内容。", 200) // ~1800 tokens
	out := Build([]Section{
		{Name: "必须段", Content: "核心信号", Priority: PriorityMust},
		{Name: "市场情报", Content: big, Priority: PriorityOptional},
	}, 100)

	assert.Contains(t, out, "核心信号")
	assert.NotContains(t, out, "市场情报内容")
	assert.Contains(t, out, "[预算限制，已省略: 市场情报]")
}

func TestBuildTruncatesMandatoryOverBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("第一行核心数据内容\n")
	}
	out := Build([]Section{
		{Name: "核心", Content: sb.String(), Priority: PriorityMust},
	}, 100)

	assert.Contains(t, out, "[...已截断]")
	assert.Less(t, len([]rune(out)), len([]rune(sb.String())))
	// Cut lands on a line boundary.
	assert.Contains(t, out, "内容\n[...已截断]")
}

func TestBuildListsAllDroppedSections(t *testing.T) {
	big := strings.Repeat("很长的内容", 100)
	out := Build([]Section{
		{Name: "核心", Content: "信号", Priority: PriorityMust},
		{Name: "情报", Content: big, Priority: PriorityOptional},
		{Name: "教训", Content: big, Priority: PriorityOptional},
	}, 50)

	assert.Contains(t, out, "[预算限制，已省略: 情报, 教训]")
}

func TestBuildZeroBudgetUsesDefault(t *testing.T) {
	out := Build([]Section{
		{Name: "a", Content: "内容", Priority: PriorityMust},
	}, 0)
	assert.Equal(t, "内容", out)
}
