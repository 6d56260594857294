// Package crawler maps a client identifier (User-Agent) to a known search engine bot.
package crawler

import (
	"strings"
)

// Bot 爬虫身份，空字符串表示非爬虫
type Bot string

// BotNone 未识别为爬虫
const BotNone Bot = ""

const (
	Googlebot            Bot = "Googlebot"
	GoogleInspectionTool Bot = "Google-InspectionTool"
	AdsBotGoogle         Bot = "AdsBot-Google"
	Bingbot              Bot = "Bingbot"
	Baiduspider          Bot = "Baiduspider"
	YandexBot            Bot = "YandexBot"
	DuckDuckBot          Bot = "DuckDuckBot"
	SogouSpider          Bot = "Sogou"
	YahooSlurp           Bot = "Yahoo! Slurp"
	Applebot             Bot = "Applebot"
	PetalBot             Bot = "PetalBot"
	Bytespider           Bot = "Bytespider"
	So360Spider          Bot = "360Spider"
	Exabot               Bot = "Exabot"
	FacebookBot          Bot = "FacebookBot"
	Twitterbot           Bot = "Twitterbot"
	LinkedInBot          Bot = "LinkedInBot"
	AhrefsBot            Bot = "AhrefsBot"
	SEMrushBot           Bot = "SEMrushBot"
	MajesticBot          Bot = "MJ12bot"
	DotBot               Bot = "DotBot"
)

// IsBot reports whether b is a recognised crawler
func (b Bot) IsBot() bool {
	return b != BotNone
}

func (b Bot) String() string {
	return string(b)
}

// Rule 一条UA片段到爬虫身份的映射，片段按小写匹配
type Rule struct {
	Fragment string
	Bot      Bot
}

// defaultRules 默认爬虫UA片段，更具体的片段排在前面
var defaultRules = []Rule{
	{"google-inspectiontool", GoogleInspectionTool},
	{"adsbot-google", AdsBotGoogle},
	{"googlebot", Googlebot},
	{"bingbot", Bingbot},
	{"msnbot", Bingbot},
	{"baiduspider", Baiduspider},
	{"yandexbot", YandexBot},
	{"yandex.com/bots", YandexBot},
	{"duckduckbot", DuckDuckBot},
	{"sogou", SogouSpider},
	{"slurp", YahooSlurp},
	{"applebot", Applebot},
	{"petalbot", PetalBot},
	{"bytespider", Bytespider},
	{"360spider", So360Spider},
	{"exabot", Exabot},
	{"facebookexternalhit", FacebookBot},
	{"facebookbot", FacebookBot},
	{"twitterbot", Twitterbot},
	{"linkedinbot", LinkedInBot},
	{"ahrefsbot", AhrefsBot},
	{"semrushbot", SEMrushBot},
	{"mj12bot", MajesticBot},
	{"dotbot", DotBot},
}

// DefaultRules returns a copy of the built-in rule table.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}

// Classifier 爬虫分类器，创建后只读，可并发使用
type Classifier struct {
	rules []Rule
}

// NewClassifier 创建爬虫分类器
// extra 中的规则排在默认规则之前，空片段或空身份的规则会被忽略
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(defaultRules))
	seen := make(map[string]bool)
	all := append(append([]Rule{}, extra...), defaultRules...)
	for _, r := range all {
		fragment := strings.ToLower(strings.TrimSpace(r.Fragment))
		if fragment == "" || r.Bot == BotNone || seen[fragment] {
			continue
		}
		seen[fragment] = true
		rules = append(rules, Rule{Fragment: fragment, Bot: r.Bot})
	}
	return &Classifier{rules: rules}
}

// Classify 根据客户端标识识别爬虫，未匹配返回 BotNone
func (c *Classifier) Classify(clientIdentifier string) Bot {
	if clientIdentifier == "" {
		return BotNone
	}
	ua := strings.ToLower(clientIdentifier)
	for _, r := range c.rules {
		if strings.Contains(ua, r.Fragment) {
			return r.Bot
		}
	}
	return BotNone
}

// Rules returns the effective rule table in match order
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

var defaultClassifier = NewClassifier()

// Classify uses the built-in rule table.
func Classify(clientIdentifier string) Bot {
	return defaultClassifier.Classify(clientIdentifier)
}
