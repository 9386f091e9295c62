// Package richtext converts Telegram formatting entities into the inline HTML
// stored in post descriptions and details.
package richtext

import (
	"html"
	"sort"
	"strings"
	"unicode"
	"unicode/utf16"
)

// Entity kinds understood by ToHTML. The values match the Telegram Bot API.
const (
	KindBold                 = "bold"
	KindItalic               = "italic"
	KindUnderline            = "underline"
	KindStrikethrough        = "strikethrough"
	KindSpoiler              = "spoiler"
	KindCode                 = "code"
	KindPre                  = "pre"
	KindTextLink             = "text_link"
	KindURL                  = "url"
	KindBlockquote           = "blockquote"
	KindExpandableBlockquote = "expandable_blockquote"
)

const lineBreak = "<br>"

// Entity is a formatting span over a message. Offset and Length count UTF-16
// code units, as Telegram does.
type Entity struct {
	Type     string
	Offset   int
	Length   int
	URL      string
	Language string
}

type span struct {
	Entity
	start, end int
	order      int
	open       string
	close      string
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// ToHTML renders text with its entities as inline HTML. Markup characters in
// the text are escaped before any tag is inserted. Overlapping spans are
// split so the output is always well nested.
func ToHTML(text string, entities []Entity) string {
	all := utf16.Encode([]rune(text))
	lo, hi := trimmedRange(all)
	spans := buildSpans(all, lo, hi, entities)
	units := all[lo:hi]

	bounds := map[int]struct{}{0: {}, len(units): {}}
	for _, s := range spans {
		bounds[s.start] = struct{}{}
		bounds[s.end] = struct{}{}
	}
	points := make([]int, 0, len(bounds))
	for p := range bounds {
		points = append(points, p)
	}
	sort.Ints(points)

	var b strings.Builder
	var stack []*span

	for i, p := range points {
		stack = closeAt(&b, stack, p)

		opening := make([]*span, 0)
		for _, s := range spans {
			if s.start == p {
				opening = append(opening, s)
			}
		}
		sort.SliceStable(opening, func(a, c int) bool {
			la, lc := opening[a].end-opening[a].start, opening[c].end-opening[c].start
			if la != lc {
				return la > lc
			}
			return opening[a].order < opening[c].order
		})
		for _, s := range opening {
			b.WriteString(s.open)
			stack = append(stack, s)
		}

		if i+1 < len(points) {
			segment := string(utf16.Decode(units[p:points[i+1]]))
			b.WriteString(escapeText(segment))
		}
	}

	return b.String()
}

// trimmedRange returns the bounds of units without leading and trailing
// whitespace, so edge line breaks vanish even inside formatted spans.
func trimmedRange(units []uint16) (int, int) {
	lo, hi := 0, len(units)
	for lo < hi && isSpace(units[lo]) {
		lo++
	}
	for hi > lo && isSpace(units[hi-1]) {
		hi--
	}
	return lo, hi
}

func isSpace(u uint16) bool {
	return !utf16.IsSurrogate(rune(u)) && unicode.IsSpace(rune(u))
}

// closeAt closes every span ending at p. Spans still active above the
// lowest closing one are closed too and re-opened afterwards in their
// original order.
func closeAt(b *strings.Builder, stack []*span, p int) []*span {
	lowest := -1
	for i, s := range stack {
		if s.end == p {
			lowest = i
			break
		}
	}
	if lowest == -1 {
		return stack
	}

	for i := len(stack) - 1; i >= lowest; i-- {
		b.WriteString(stack[i].close)
	}

	kept := stack[:lowest]
	reopen := make([]*span, 0, len(stack)-lowest)
	for _, s := range stack[lowest:] {
		if s.end != p {
			reopen = append(reopen, s)
		}
	}
	for _, s := range reopen {
		b.WriteString(s.open)
		kept = append(kept, s)
	}
	return kept
}

// buildSpans clips entities to units[lo:hi] and returns them relative to lo.
func buildSpans(units []uint16, lo, hi int, entities []Entity) []*span {
	spans := make([]*span, 0, len(entities))
	for i, e := range entities {
		start, end, ok := clampEntity(e, len(units))
		if !ok {
			continue
		}

		open, closeTag, ok := tagsFor(e, units[start:end])
		if !ok {
			continue
		}
		start, end = max(start, lo), min(end, hi)
		if start >= end {
			continue
		}
		spans = append(spans, &span{
			Entity: e,
			start:  start - lo,
			end:    end - lo,
			order:  i,
			open:   open,
			close:  closeTag,
		})
	}
	return spans
}

// clampEntity bounds e to [0, n) without overflowing on huge offsets or
// lengths.
func clampEntity(e Entity, n int) (int, int, bool) {
	if e.Length <= 0 || e.Offset >= n {
		return 0, 0, false
	}
	if e.Offset < 0 {
		end := e.Offset + e.Length
		if end <= 0 {
			return 0, 0, false
		}
		return 0, min(end, n), true
	}
	return e.Offset, e.Offset + min(e.Length, n-e.Offset), true
}

func tagsFor(e Entity, covered []uint16) (string, string, bool) {
	switch e.Type {
	case KindBold:
		return "<b>", "</b>", true
	case KindItalic:
		return "<i>", "</i>", true
	case KindUnderline:
		return "<u>", "</u>", true
	case KindStrikethrough:
		return "<s>", "</s>", true
	case KindSpoiler:
		return `<span class="tg-spoiler">`, "</span>", true
	case KindCode:
		return "<code>", "</code>", true
	case KindPre:
		if e.Language != "" {
			return `<pre><code class="language-` + html.EscapeString(e.Language) + `">`, "</code></pre>", true
		}
		return "<pre>", "</pre>", true
	case KindTextLink:
		if e.URL == "" {
			return "", "", false
		}
		return `<a href="` + html.EscapeString(e.URL) + `">`, "</a>", true
	case KindURL:
		href := strings.TrimSpace(string(utf16.Decode(covered)))
		if href == "" {
			return "", "", false
		}
		return `<a href="` + html.EscapeString(href) + `">`, "</a>", true
	case KindBlockquote, KindExpandableBlockquote:
		return "<blockquote>", "</blockquote>", true
	default:
		return "", "", false
	}
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(textEscaper.Replace(s), "\n", lineBreak)
}

// StripTags turns stored inline HTML back into plain text for previews.
func StripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for len(s) > 0 {
		lt := strings.IndexByte(s, '<')
		if lt == -1 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:lt])
		gt := strings.IndexByte(s[lt:], '>')
		if gt == -1 {
			b.WriteString(s[lt:])
			break
		}
		tag := strings.ToLower(s[lt : lt+gt+1])
		if tag == "<br>" || tag == "<br/>" || tag == "<br />" {
			b.WriteByte('\n')
		}
		s = s[lt+gt+1:]
	}

	return strings.TrimSpace(html.UnescapeString(b.String()))
}
