// Package markdown parses a deliberately restricted Markdown dialect into a
// block tree for display. Supported:
//   - Headings: # .. ######
//   - Paragraphs
//   - Unordered lists: -, *
//   - Ordered lists: 1. / 1)
//   - Inline: **bold**, *italic*, `code`
//   - Fenced code blocks: ```lang ... ```
//   - Horizontal rule: ---
//
// Not a full Markdown spec; safe for study notes. Parse never fails: input
// that matches no structural pattern comes back as plain paragraphs.
package markdown

import (
	"regexp"
	"strings"
)

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockBulletList
	BlockNumberList
	BlockCode
	BlockRule
)

type SpanKind int

const (
	SpanText SpanKind = iota
	SpanBold
	SpanItalic
	SpanCode
)

// Span is a single run of inline content.
type Span struct {
	Kind SpanKind
	Text string
}

// Block is one display unit. Which fields are set depends on Kind: headings
// carry Level and Content, paragraphs Content, lists Items, code Lang and
// Code. Rules carry nothing.
type Block struct {
	Kind    BlockKind
	Level   int
	Lang    string
	Code    string
	Content []Span
	Items   [][]Span
}

var (
	fenceRe   = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletRe  = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	numberRe  = regexp.MustCompile(`^\s*\d+[.)]\s+(.*)$`)

	inlineCodeRe = regexp.MustCompile("`[^`]+`")
	boldRe       = regexp.MustCompile(`\*\*[^*]+\*\*`)
	italicRe     = regexp.MustCompile(`\*[^*]+\*`)
)

// Parse splits source into blocks. Matched code fences are extracted first
// and their contents kept verbatim; an unterminated fence simply never
// matches and falls through to the paragraph path.
func Parse(source string) []Block {
	var blocks []Block
	idx := 0
	for _, m := range fenceRe.FindAllStringSubmatchIndex(source, -1) {
		blocks = append(blocks, parseText(source[idx:m[0]])...)
		lang := ""
		if m[2] >= 0 {
			lang = source[m[2]:m[3]]
		}
		blocks = append(blocks, Block{
			Kind: BlockCode,
			Lang: lang,
			Code: strings.TrimRight(source[m[4]:m[5]], " \t\r\n"),
		})
		idx = m[1]
	}
	return append(blocks, parseText(source[idx:])...)
}

// parseText segments non-fenced text line by line. Blank lines separate
// blocks; list runs end at the first non-matching line; everything that is
// not a heading, list item, or rule joins the current paragraph with its
// line breaks preserved.
func parseText(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	var blocks []Block
	for i := 0; i < len(lines); {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			i++
		case trimmed == "---":
			blocks = append(blocks, Block{Kind: BlockRule})
			i++
		case headingRe.MatchString(trimmed):
			m := headingRe.FindStringSubmatch(trimmed)
			blocks = append(blocks, Block{
				Kind:    BlockHeading,
				Level:   len(m[1]),
				Content: ParseInline(m[2]),
			})
			i++
		case bulletRe.MatchString(line):
			var items [][]Span
			for i < len(lines) {
				m := bulletRe.FindStringSubmatch(lines[i])
				if m == nil {
					break
				}
				items = append(items, ParseInline(m[1]))
				i++
			}
			blocks = append(blocks, Block{Kind: BlockBulletList, Items: items})
		case numberRe.MatchString(line):
			// Source numbering is discarded; rendering renumbers
			// positionally.
			var items [][]Span
			for i < len(lines) {
				m := numberRe.FindStringSubmatch(lines[i])
				if m == nil {
					break
				}
				items = append(items, ParseInline(m[1]))
				i++
			}
			blocks = append(blocks, Block{Kind: BlockNumberList, Items: items})
		default:
			var para []string
			for i < len(lines) {
				l := lines[i]
				t := strings.TrimSpace(l)
				if t == "" || t == "---" || headingRe.MatchString(t) ||
					bulletRe.MatchString(l) || numberRe.MatchString(l) {
					break
				}
				para = append(para, l)
				i++
			}
			blocks = append(blocks, Block{
				Kind:    BlockParagraph,
				Content: ParseInline(strings.Join(para, "\n")),
			})
		}
	}
	return blocks
}

// ParseInline splits text into spans. Inline code has the highest precedence
// and its contents are never scanned further; bold is matched before italic
// since its marker is longer. Stray markers are preserved literally.
func ParseInline(text string) []Span {
	var spans []Span
	idx := 0
	for _, m := range inlineCodeRe.FindAllStringIndex(text, -1) {
		spans = append(spans, parseBold(text[idx:m[0]])...)
		spans = append(spans, Span{Kind: SpanCode, Text: text[m[0]+1 : m[1]-1]})
		idx = m[1]
	}
	return append(spans, parseBold(text[idx:])...)
}

func parseBold(text string) []Span {
	var spans []Span
	idx := 0
	for _, m := range boldRe.FindAllStringIndex(text, -1) {
		spans = append(spans, parseItalic(text[idx:m[0]])...)
		spans = append(spans, Span{Kind: SpanBold, Text: text[m[0]+2 : m[1]-2]})
		idx = m[1]
	}
	return append(spans, parseItalic(text[idx:])...)
}

func parseItalic(text string) []Span {
	var spans []Span
	idx := 0
	for _, m := range italicRe.FindAllStringIndex(text, -1) {
		if m[0] > idx {
			spans = append(spans, Span{Kind: SpanText, Text: text[idx:m[0]]})
		}
		spans = append(spans, Span{Kind: SpanItalic, Text: text[m[0]+1 : m[1]-1]})
		idx = m[1]
	}
	if idx < len(text) {
		spans = append(spans, Span{Kind: SpanText, Text: text[idx:]})
	}
	return spans
}
