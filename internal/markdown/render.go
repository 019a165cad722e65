package markdown

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML maps each block to its presentation element. The mapping is
// purely structural: heading level becomes the matching heading tag with a
// size class, lists become ul/ol containers, code blocks get a language
// label defaulting to "code".
func RenderHTML(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&b, "<h%d class=\"md-h%d\">%s</h%d>\n",
				blk.Level, blk.Level, renderSpans(blk.Content), blk.Level)
		case BlockParagraph:
			fmt.Fprintf(&b, "<p>%s</p>\n", renderSpans(blk.Content))
		case BlockBulletList:
			b.WriteString("<ul>\n")
			for _, item := range blk.Items {
				fmt.Fprintf(&b, "<li>%s</li>\n", renderSpans(item))
			}
			b.WriteString("</ul>\n")
		case BlockNumberList:
			b.WriteString("<ol>\n")
			for _, item := range blk.Items {
				fmt.Fprintf(&b, "<li>%s</li>\n", renderSpans(item))
			}
			b.WriteString("</ol>\n")
		case BlockCode:
			lang := blk.Lang
			if lang == "" {
				lang = "code"
			}
			fmt.Fprintf(&b, "<pre data-lang=\"%s\"><code>%s</code></pre>\n",
				html.EscapeString(lang), html.EscapeString(blk.Code))
		case BlockRule:
			b.WriteString("<hr>\n")
		}
	}
	return b.String()
}

// RenderSource is Parse followed by RenderHTML.
func RenderSource(source string) string {
	return RenderHTML(Parse(source))
}

func renderSpans(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		text := strings.ReplaceAll(html.EscapeString(s.Text), "\n", "<br>")
		switch s.Kind {
		case SpanBold:
			b.WriteString("<strong>" + text + "</strong>")
		case SpanItalic:
			b.WriteString("<em>" + text + "</em>")
		case SpanCode:
			b.WriteString("<code>" + text + "</code>")
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}
