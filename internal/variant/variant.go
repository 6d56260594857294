// Package variant derives per-domain structural choices (palette, sitemap and
// robots shape) as pure functions of the hostname.
package variant

import (
	"html/template"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Index maps domain onto [0, n). The same domain always yields the same index.
func Index(domain, salt string, n int) int {
	if n <= 0 {
		return 0
	}
	key := strings.ToLower(strings.TrimSpace(domain))
	if salt != "" {
		key = salt + ":" + key
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}

// SitemapVariant sitemap XML 结构变体
type SitemapVariant int

const (
	SitemapPlain SitemapVariant = iota
	SitemapImage
	SitemapMobile
)

func (v SitemapVariant) String() string {
	switch v {
	case SitemapImage:
		return "image"
	case SitemapMobile:
		return "mobile"
	default:
		return "plain"
	}
}

// RobotsVariant robots.txt 结构变体
type RobotsVariant int

const (
	RobotsAllowAll RobotsVariant = iota
	RobotsCrawlDelay
	RobotsPerBot
)

func (v RobotsVariant) String() string {
	switch v {
	case RobotsCrawlDelay:
		return "crawl-delay"
	case RobotsPerBot:
		return "per-bot"
	default:
		return "allow-all"
	}
}

// Sitemap selects the sitemap shape for a domain
func Sitemap(domain string) SitemapVariant {
	return SitemapVariant(Index(domain, "", 3))
}

// Robots selects the robots.txt shape for a domain. Salted so that the two
// choices are not locked together.
func Robots(domain string) RobotsVariant {
	return RobotsVariant(Index(domain, "robots", 3))
}

// Palette 页面视觉主题
type Palette struct {
	Name       string
	Background string
	Foreground string
	Accent     string
	Font       string
}

// CSS renders the palette stylesheet. Values come from the fixed table below.
func (p Palette) CSS() template.CSS {
	return template.CSS("body{margin:0 auto;max-width:860px;padding:0 16px;background:" + p.Background +
		";color:" + p.Foreground + ";font-family:" + p.Font + "}a{color:" + p.Accent +
		"}h1,h2{color:" + p.Accent + "}header,footer{padding:12px 0}")
}

var palettes = []Palette{
	{Name: "ivory", Background: "#fffff8", Foreground: "#222222", Accent: "#8b2500", Font: "Georgia,serif"},
	{Name: "slate", Background: "#f4f6f8", Foreground: "#1f2933", Accent: "#3e4c59", Font: "Helvetica,Arial,sans-serif"},
	{Name: "forest", Background: "#f3f8f2", Foreground: "#1b2d1b", Accent: "#2e7d32", Font: "Verdana,sans-serif"},
	{Name: "ocean", Background: "#f0f7fb", Foreground: "#102a43", Accent: "#0b6e99", Font: "Tahoma,sans-serif"},
	{Name: "sand", Background: "#fbf6ee", Foreground: "#3d2b1f", Accent: "#b5651d", Font: "Palatino,serif"},
	{Name: "night", Background: "#1a1a2e", Foreground: "#e0e0e0", Accent: "#e94560", Font: "Trebuchet MS,sans-serif"},
	{Name: "rose", Background: "#fff5f7", Foreground: "#3b1f2b", Accent: "#c2185b", Font: "Garamond,serif"},
	{Name: "mono", Background: "#ffffff", Foreground: "#111111", Accent: "#555555", Font: "Courier New,monospace"},
}

// Palettes returns the fixed palette table
func Palettes() []Palette {
	out := make([]Palette, len(palettes))
	copy(out, palettes)
	return out
}

// PaletteFor selects the domain's stable visual theme
func PaletteFor(domain string) Palette {
	return palettes[Index(domain, "palette", len(palettes))]
}

// PaletteByName looks a palette up by name, falling back to the first one
func PaletteByName(name string) Palette {
	for _, p := range palettes {
		if p.Name == name {
			return p
		}
	}
	return palettes[0]
}
