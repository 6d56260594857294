package generator

import (
	"bytes"
	"html/template"
	"strings"

	"content-pool/internal/config"
	"content-pool/internal/variant"
)

// section 一个段落，Heading 非空时在段落前插入小标题
type section struct {
	Heading string
	Text    string
}

type link struct {
	Slug  string
	Title string
}

type documentData struct {
	SiteName    string
	Title       string
	Description string
	Keywords    string
	Theme       string
	Palette     variant.Palette
	Sections    []section
	Related     []link
	Canonical   *config.CanonicalSite
}

var documentTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<meta name="description" content="{{.Description}}">
<meta name="keywords" content="{{.Keywords}}">
<link rel="icon" type="image/svg+xml" href="/logo.svg">
<style>{{.Palette.CSS}}</style>
</head>
<body class="theme-{{.Theme}} palette-{{.Palette.Name}}">
<header class="site"><a href="/">{{.SiteName}}</a></header>
<main>
<article class="content">
<h1>{{.Title}}</h1>
{{range .Sections}}{{if .Heading}}<h2>{{.Heading}}</h2>
{{end}}<p>{{.Text}}</p>
{{end}}</article>
{{if .Related}}<aside class="related">
<h3>Related reading</h3>
<ul>
{{range .Related}}<li><a href="/{{.Slug}}">{{.Title}}</a></li>
{{end}}</ul>
</aside>
{{end}}{{with .Canonical}}<p class="reference">Reference: <a href="{{.URL}}" rel="nofollow">{{.Name}}</a></p>
{{end}}</main>
<footer class="site"><a href="/">{{.SiteName}}</a></footer>
</body>
</html>
`))

func renderDocument(d documentData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ", ")
}
