package domain

import "strings"

// Category is the asset class of a fund.
type Category string

const (
	CategoryEquity Category = "equity"
	CategoryBond   Category = "bond"
	CategoryIndex  Category = "index"
	CategoryGold   Category = "gold"
	CategoryQDII   Category = "qdii"
)

// Categories lists all known asset classes in display order.
func Categories() []Category {
	return []Category{CategoryEquity, CategoryBond, CategoryIndex, CategoryGold, CategoryQDII}
}

var (
	goldKeywords  = []string{"黄金", "贵金属"}
	qdiiKeywords  = []string{"QDII", "标普", "纳斯达克", "恒生", "美国", "海外"}
	bondKeywords  = []string{"债", "纯债", "短债", "利率", "信用"}
	indexKeywords = []string{"ETF联接", "指数"}
)

// ClassifyByName infers a fund's category from its name keywords.
// Checks gold, then QDII, then bond, then index; anything else is equity.
func ClassifyByName(fundName string) Category {
	for _, kw := range goldKeywords {
		if strings.Contains(fundName, kw) {
			return CategoryGold
		}
	}
	for _, kw := range qdiiKeywords {
		if strings.Contains(fundName, kw) {
			return CategoryQDII
		}
	}
	for _, kw := range bondKeywords {
		if strings.Contains(fundName, kw) {
			return CategoryBond
		}
	}
	for _, kw := range indexKeywords {
		if strings.Contains(fundName, kw) {
			return CategoryIndex
		}
	}
	return CategoryEquity
}

// DisplayName returns the Chinese label used in reports and the CLI.
func (c Category) DisplayName() string {
	switch c {
	case CategoryEquity:
		return "偏股"
	case CategoryBond:
		return "债券"
	case CategoryIndex:
		return "指数"
	case CategoryGold:
		return "黄金"
	case CategoryQDII:
		return "QDII"
	}
	return string(c)
}
