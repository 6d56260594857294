package generator

import (
	"strings"
	"unicode"
)

const maxSlugBase = 60

// Slugify 生成只包含小写ASCII字母、数字和连字符的slug
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugBase {
			break
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxSlugBase {
		out = strings.TrimRight(out[:maxSlugBase], "-")
	}
	if out == "" {
		return "page"
	}
	return out
}
