package sitehandler

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"html/template"
	"strings"

	"content-pool/internal/config"
	"content-pool/internal/crawler"
	"content-pool/internal/models"
	"content-pool/internal/variant"
)

const (
	sitemapNS       = "http://www.sitemaps.org/schemas/sitemap/0.9"
	sitemapImageNS  = "http://www.google.com/schemas/sitemap-image/1.1"
	sitemapMobileNS = "http://www.google.com/schemas/sitemap-mobile/1.0"
	lastmodLayout   = "2006-01-02"

	// LogoPath 每个域名的调色板图标
	LogoPath = "/logo.svg"
)

type sitemapURL struct {
	Loc        string        `xml:"loc"`
	LastMod    string        `xml:"lastmod,omitempty"`
	ChangeFreq string        `xml:"changefreq,omitempty"`
	Priority   string        `xml:"priority,omitempty"`
	Image      *sitemapImage `xml:"image:image,omitempty"`
	Mobile     *struct{}     `xml:"mobile:mobile,omitempty"`
}

type sitemapImage struct {
	Loc   string `xml:"image:loc"`
	Title string `xml:"image:title,omitempty"`
}

type urlset struct {
	XMLName  xml.Name     `xml:"urlset"`
	XMLNS    string       `xml:"xmlns,attr"`
	ImageNS  string       `xml:"xmlns:image,attr,omitempty"`
	MobileNS string       `xml:"xmlns:mobile,attr,omitempty"`
	URLs     []sitemapURL `xml:"url"`
}

// renderSitemap 按变体生成sitemap，首页总在第一条
func renderSitemap(v variant.SitemapVariant, base string, pages []models.PageSummary) ([]byte, error) {
	set := urlset{XMLNS: sitemapNS}
	switch v {
	case variant.SitemapImage:
		set.ImageNS = sitemapImageNS
	case variant.SitemapMobile:
		set.MobileNS = sitemapMobileNS
	}

	home := sitemapURL{Loc: base + "/"}
	if v == variant.SitemapPlain {
		home.ChangeFreq = "daily"
		home.Priority = "1.0"
	}
	if v == variant.SitemapMobile {
		home.Mobile = &struct{}{}
	}
	set.URLs = append(set.URLs, home)

	for _, p := range pages {
		u := sitemapURL{Loc: base + "/" + p.Slug}
		if !p.CreatedAt.IsZero() {
			u.LastMod = p.CreatedAt.UTC().Format(lastmodLayout)
		}
		switch v {
		case variant.SitemapPlain:
			u.ChangeFreq = "weekly"
			u.Priority = "0.8"
		case variant.SitemapImage:
			u.Image = &sitemapImage{Loc: base + LogoPath, Title: p.Title}
		case variant.SitemapMobile:
			u.Mobile = &struct{}{}
		}
		set.URLs = append(set.URLs, u)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// renderLogo 用域名调色板和首字母生成 SVG 图标
func renderLogo(domain string) []byte {
	p := variant.PaletteFor(domain)
	initial := "#"
	if domain != "" {
		initial = strings.ToUpper(domain[:1])
	}
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64" viewBox="0 0 64 64">
<rect width="64" height="64" rx="12" fill="%s"/>
<circle cx="32" cy="32" r="24" fill="%s"/>
<text x="32" y="42" text-anchor="middle" font-size="28" font-family="%s" fill="%s">%s</text>
</svg>
`, p.Background, p.Accent, html.EscapeString(p.Font), p.Background, html.EscapeString(initial)))
}

// perBotAgents robots.txt 中单独列出的爬虫
var perBotAgents = []crawler.Bot{
	crawler.Googlebot,
	crawler.Bingbot,
	crawler.Baiduspider,
	crawler.YandexBot,
	crawler.DuckDuckBot,
}

// crawlDelay 1-5 秒，由域名决定
func crawlDelay(domain string) int {
	return variant.Index(domain, "crawl-delay", 5) + 1
}

// renderRobots 按变体生成robots.txt
func renderRobots(v variant.RobotsVariant, domain, base string) []byte {
	var b strings.Builder
	switch v {
	case variant.RobotsCrawlDelay:
		b.WriteString("User-agent: *\n")
		b.WriteString("Allow: /\n")
		fmt.Fprintf(&b, "Crawl-delay: %d\n", crawlDelay(domain))
	case variant.RobotsPerBot:
		for _, bot := range perBotAgents {
			fmt.Fprintf(&b, "User-agent: %s\n", bot)
			b.WriteString("Allow: /\n\n")
		}
		b.WriteString("User-agent: *\n")
		b.WriteString("Allow: /\n")
		b.WriteString("Disallow: /*?type=\n")
	default:
		b.WriteString("User-agent: *\n")
		b.WriteString("Allow: /\n")
	}
	fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", base)
	return []byte(b.String())
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{if .Description}}<meta name="description" content="{{.Description}}">
{{end}}<link rel="canonical" href="{{.Base}}/">
<link rel="icon" type="image/svg+xml" href="/logo.svg">
<style>{{.CSS}}</style>
</head>
<body>
<header><h1>{{.Title}}</h1>{{if .Description}}<p>{{.Description}}</p>{{end}}</header>
<main>
<ul class="pages">
{{range .Pages}}<li><a href="/{{.Slug}}">{{.Title}}</a>{{if .Description}}<p>{{.Description}}</p>{{end}}</li>
{{else}}<li class="empty">No articles yet.</li>
{{end}}</ul>
</main>
<aside class="resources">
<h2>Recommended resources</h2>
<ul>
{{range .Resources}}<li><a href="{{.URL}}">{{.Name}}</a></li>
{{end}}</ul>
</aside>
<footer><p>&copy; {{.Title}}</p></footer>
</body>
</html>
`))

type indexData struct {
	Title       string
	Description string
	Base        string
	CSS         template.CSS
	Pages       []models.PageSummary
	Resources   []config.CanonicalSite
}

// renderIndex 首页列表加固定的推荐资源区块
func renderIndex(rec *models.DomainRecord, base string, pages []models.PageSummary, resources []config.CanonicalSite) ([]byte, error) {
	title := rec.DisplayName
	if title == "" {
		title = rec.Hostname
	}
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		Title:       title,
		Description: rec.Description,
		Base:        base,
		CSS:         variant.PaletteFor(rec.Hostname).CSS(),
		Pages:       pages,
		Resources:   resources,
	})
	if err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	return buf.Bytes(), nil
}

// NotFoundPage 404 页面
var NotFoundPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>404 Not Found</title></head>
<body><h1>404 Not Found</h1><p>The page you requested does not exist.</p><p><a href="/">Home</a></p></body>
</html>
`)
