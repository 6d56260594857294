package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_KnownAgents(t *testing.T) {
	cases := map[string]Bot{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)":                  Googlebot,
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)":                   Bingbot,
		"Mozilla/5.0 (compatible; Baiduspider/2.0; +http://www.baidu.com/search/spider.html)":       Baiduspider,
		"Mozilla/5.0 (compatible; YandexBot/3.0; +http://yandex.com/bots)":                          YandexBot,
		"DuckDuckBot/1.1; (+http://duckduckgo.com/duckduckbot.html)":                                DuckDuckBot,
		"Sogou web spider/4.0(+http://www.sogou.com/docs/help/webmasters.htm#07)":                   SogouSpider,
		"Mozilla/5.0 (compatible; Yahoo! Slurp; http://help.yahoo.com/help/us/ysearch/slurp)":       YahooSlurp,
		"Mozilla/5.0 (compatible; Google-InspectionTool/1.0)":                                       GoogleInspectionTool,
		"facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)":                 FacebookBot,
		"Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)":                        AhrefsBot,
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_5) AppleWebKit/605.1.15 (KHTML) Applebot/0.1": Applebot,
	}
	for ua, want := range cases {
		assert.Equal(t, want, Classify(ua), ua)
	}
}

func TestClassify_CaseInsensitiveAndIdempotent(t *testing.T) {
	assert.Equal(t, Classify("Googlebot/2.1"), Classify("googlebot/2.1"))
	assert.Equal(t, Classify("GOOGLEBOT/2.1"), Classify("googlebot/2.1"))
	assert.Equal(t, Googlebot, Classify("googlebot/2.1"))

	first := Classify("Mozilla/5.0 (compatible; bingbot/2.0)")
	second := Classify("Mozilla/5.0 (compatible; bingbot/2.0)")
	assert.Equal(t, first, second)
}

func TestClassify_None(t *testing.T) {
	assert.Equal(t, BotNone, Classify("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"))
	assert.Equal(t, BotNone, Classify(""))
	assert.Equal(t, BotNone, Classify("\x00\xff garbage"))
	assert.False(t, Classify("curl/8.0").IsBot())
}

func TestNewClassifier_ExtraRulesTakePrecedence(t *testing.T) {
	c := NewClassifier(
		Rule{Fragment: "MyCrawler", Bot: "MyCrawler"},
		Rule{Fragment: "googlebot-news", Bot: "Googlebot-News"},
		Rule{Fragment: "", Bot: "Ignored"},
		Rule{Fragment: "nobot", Bot: BotNone},
	)

	assert.Equal(t, Bot("MyCrawler"), c.Classify("mycrawler/1.0"))
	assert.Equal(t, Bot("Googlebot-News"), c.Classify("Googlebot-News"))
	assert.Equal(t, Googlebot, c.Classify("Googlebot/2.1"))
	assert.Equal(t, BotNone, c.Classify("nobot"))
	assert.Len(t, c.Rules(), len(DefaultRules())+2)
}
