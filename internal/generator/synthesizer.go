package generator

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"content-pool/internal/config"
	"content-pool/internal/models"
	"content-pool/internal/variant"
)

const (
	minKeywords      = 6
	maxKeywords      = 20
	minRelated       = 3
	maxRelated       = 5
	subheadingEvery  = 3
	descriptionRunes = 150
)

// ParagraphBounds 第 i 页（从1开始）的段落数范围：奇数页 4-6，偶数页 10-14
func ParagraphBounds(i int) (int, int) {
	if i%2 == 1 {
		return 4, 6
	}
	return 10, 14
}

// BuildInput 一次生成所需的全部输入
type BuildInput struct {
	Domain     *models.DomainRecord
	Corpus     *models.Corpus
	PageCount  int
	Theme      string
	Generation string
	Canonical  []config.CanonicalSite
	Now        time.Time
}

// plan 第一遍确定的页面骨架
type plan struct {
	seq     int
	heading string
	title   string
	slug    string
}

// Synthesizer 从语料生成一组页面，所有随机性来自传入的 rand.Rand
type Synthesizer struct {
	rng *rand.Rand
}

// NewSynthesizer 创建生成器
func NewSynthesizer(rng *rand.Rand) *Synthesizer {
	return &Synthesizer{rng: rng}
}

// Build 生成 PageCount 个页面
// 第一遍为所有页面确定标题与slug，第二遍组装正文，使内部链接可以指向任何页面
func (s *Synthesizer) Build(in BuildInput) ([]*models.SynthesizedPage, error) {
	if in.PageCount < 1 {
		return nil, fmt.Errorf("%w: page count %d", models.ErrInvalidArgument, in.PageCount)
	}
	if in.Corpus == nil || len(in.Corpus.Paragraphs) == 0 || len(in.Corpus.Headings) == 0 {
		return nil, models.ErrContentInsufficient
	}

	theme := NormalizeTheme(in.Theme)
	palette := variant.PaletteFor(in.Domain.Hostname)
	siteName := in.Domain.DisplayName
	if siteName == "" {
		siteName = in.Domain.Hostname
	}

	tags := domainTags(in.Domain)
	plans := s.plan(in.Corpus.Headings, taggedHeadings(in.Corpus.Headings, tags), in.PageCount, theme)
	keywordPool := mergeUnique(in.Corpus.Keywords, in.Domain.SecondaryTags)
	primary := mergeUnique(in.Domain.PrimaryTags)

	pages := make([]*models.SynthesizedPage, 0, len(plans))
	for idx, p := range plans {
		paraIdx := s.sampleParagraphs(len(in.Corpus.Paragraphs), p.seq)

		sections := make([]section, len(paraIdx))
		for j, pi := range paraIdx {
			sections[j] = section{Text: in.Corpus.Paragraphs[pi]}
			if j > 0 && j%subheadingEvery == 0 {
				sections[j].Heading = s.otherHeading(in.Corpus.Headings, p.heading)
			}
		}

		keywords := s.sampleKeywords(keywordPool, primary)
		related := s.related(plans, idx)

		var canonical *config.CanonicalSite
		if len(in.Canonical) > 0 {
			c := in.Canonical[s.rng.Intn(len(in.Canonical))]
			canonical = &c
		}

		description := truncateRunes(in.Corpus.Paragraphs[paraIdx[0]], descriptionRunes)
		body, err := renderDocument(documentData{
			SiteName:    siteName,
			Title:       p.title,
			Description: description,
			Keywords:    joinKeywords(keywords),
			Theme:       theme,
			Palette:     palette,
			Sections:    sections,
			Related:     related,
			Canonical:   canonical,
		})
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", p.seq, err)
		}

		pages = append(pages, &models.SynthesizedPage{
			Domain:      in.Domain.Hostname,
			Slug:        p.slug,
			Seq:         p.seq,
			Title:       p.title,
			Description: description,
			Keywords:    keywords,
			Body:        body,
			Theme:       theme,
			Palette:     palette.Name,
			Published:   true,
			Status:      models.PageStatusActive,
			Sources:     origins(in.Corpus.ParagraphOrigins, paraIdx),
			Generation:  in.Generation,
			CreatedAt:   in.Now,
		})
	}
	return pages, nil
}

// plan 为每页选择种子标题；包含域名标签的标题有一半概率被优先选中
func (s *Synthesizer) plan(headings, tagged []string, n int, theme string) []plan {
	plans := make([]plan, 0, n)
	used := make(map[string]bool, n)
	for i := 1; i <= n; i++ {
		var heading string
		if len(tagged) > 0 && s.rng.Intn(2) == 0 {
			heading = tagged[s.rng.Intn(len(tagged))]
		} else {
			heading = headings[s.rng.Intn(len(headings))]
		}
		slug := fmt.Sprintf("%s-%d", Slugify(heading), i)
		for k := 2; used[slug]; k++ {
			slug = fmt.Sprintf("%s-%d-%d", Slugify(heading), i, k)
		}
		used[slug] = true
		plans = append(plans, plan{
			seq:     i,
			heading: heading,
			title:   TitlePrefix(s.rng, theme) + " " + heading,
			slug:    slug,
		})
	}
	return plans
}

// sampleParagraphs 无放回抽取段落下标；语料不足时才允许重复
func (s *Synthesizer) sampleParagraphs(corpusSize, seq int) []int {
	lo, hi := ParagraphBounds(seq)
	count := lo + s.rng.Intn(hi-lo+1)

	perm := s.rng.Perm(corpusSize)
	if count <= corpusSize {
		return perm[:count]
	}
	out := append([]int{}, perm...)
	for len(out) < count {
		out = append(out, s.rng.Intn(corpusSize))
	}
	return out
}

// sampleKeywords 抽取 6-20 个关键词，主标签总是排在最前并计入上限
func (s *Synthesizer) sampleKeywords(keywords, primary []string) []string {
	if len(keywords) == 0 && len(primary) == 0 {
		return []string{}
	}
	size := minKeywords + s.rng.Intn(maxKeywords-minKeywords+1)
	if size > len(keywords) {
		size = len(keywords)
	}
	sampled := make([]string, 0, size)
	for _, i := range s.rng.Perm(len(keywords))[:size] {
		sampled = append(sampled, keywords[i])
	}

	out := mergeUnique(primary, sampled)
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

func domainTags(d *models.DomainRecord) []string {
	return mergeUnique(d.PrimaryTags, d.SecondaryTags)
}

// taggedHeadings 返回包含任一标签的标题（不区分大小写）
func taggedHeadings(headings, tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	var out []string
	for _, h := range headings {
		lower := strings.ToLower(h)
		for _, t := range tags {
			if strings.Contains(lower, strings.ToLower(t)) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// mergeUnique 按出现顺序合并，忽略空白项和大小写重复
func mergeUnique(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			key := strings.ToLower(item)
			if item == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}

// otherHeading 选择一个与种子标题不同的小标题
func (s *Synthesizer) otherHeading(headings []string, seed string) string {
	for try := 0; try < 8; try++ {
		h := headings[s.rng.Intn(len(headings))]
		if h != seed {
			return h
		}
	}
	for _, h := range headings {
		if h != seed {
			return h
		}
	}
	return seed
}

// related 选择 3-5 个同域名的其他页面作为内部链接
func (s *Synthesizer) related(plans []plan, self int) []link {
	want := minRelated + s.rng.Intn(maxRelated-minRelated+1)
	if want > len(plans)-1 {
		want = len(plans) - 1
	}
	out := make([]link, 0, want)
	for _, i := range s.rng.Perm(len(plans)) {
		if len(out) == want {
			break
		}
		if i == self {
			continue
		}
		out = append(out, link{Slug: plans[i].slug, Title: plans[i].title})
	}
	return out
}

func origins(paragraphOrigins []string, idx []int) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, i := range idx {
		if i >= len(paragraphOrigins) {
			continue
		}
		name := paragraphOrigins[i]
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
