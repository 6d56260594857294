package generator

import (
	"math/rand"
	"strings"
)

// DefaultTheme 未知主题时使用
const DefaultTheme = "general"

// titlePrefixes 每个主题的标题前缀词表
var titlePrefixes = map[string][]string{
	"seo": {
		"SEO Guide:",
		"Ranking Insights:",
		"Search Strategy:",
		"Optimization Notes:",
		"Visibility Playbook:",
	},
	"tech": {
		"Tech Deep Dive:",
		"Engineering Notes:",
		"How It Works:",
		"Developer Brief:",
		"Inside the Stack:",
	},
	"finance": {
		"Market Watch:",
		"Money Matters:",
		"Investor Brief:",
		"Financial Outlook:",
		"Budget Basics:",
	},
	"health": {
		"Wellness Guide:",
		"Health Notes:",
		"Better Living:",
		"Care Essentials:",
		"Healthy Habits:",
	},
	"lifestyle": {
		"Everyday Living:",
		"Style Notes:",
		"Weekend Reads:",
		"Life Tips:",
		"Home and Leisure:",
	},
	"general": {
		"Overview:",
		"Explained:",
		"Key Facts:",
		"In Focus:",
		"Quick Read:",
	},
}

// Themes 返回所有可用主题
func Themes() []string {
	return []string{"seo", "tech", "finance", "health", "lifestyle", "general"}
}

// NormalizeTheme 规范化主题名，未知主题返回 general
func NormalizeTheme(theme string) string {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if _, ok := titlePrefixes[theme]; ok {
		return theme
	}
	return DefaultTheme
}

// TitlePrefix 随机选择主题的标题前缀
func TitlePrefix(r *rand.Rand, theme string) string {
	vocab := titlePrefixes[NormalizeTheme(theme)]
	return vocab[r.Intn(len(vocab))]
}
