// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// =============================================================================
// RENDERER
// =============================================================================

// Options configures a Renderer.
type Options struct {
	// Highlighter is optional. Without one, code blocks are plain escaped
	// text.
	Highlighter Highlighter

	// DiagramLanguages lists fence languages rendered as diagram
	// containers instead of code. Defaults to ["mermaid"].
	DiagramLanguages []string

	// Sanitize runs the output through a strict allow-list policy.
	Sanitize bool
}

// Renderer converts Markdown to HTML. It holds no per-call state and is
// safe for concurrent use.
type Renderer struct {
	highlighter Highlighter
	diagrams    map[string]bool
	policy      *bluemonday.Policy
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	langs := opts.DiagramLanguages
	if langs == nil {
		langs = []string{"mermaid"}
	}
	r := &Renderer{
		highlighter: opts.Highlighter,
		diagrams:    make(map[string]bool, len(langs)),
	}
	for _, l := range langs {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			r.diagrams[l] = true
		}
	}
	if opts.Sanitize {
		r.policy = newPolicy()
	}
	return r
}

// Render converts text to HTML. It accepts partial input, so it can be
// called on every update of a streaming reply, and never panics.
func (r *Renderer) Render(text string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			out = "<p>" + html.EscapeString(text) + "</p>"
		}
	}()

	rs := &renderState{}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "�")

	text = r.extractFences(text, rs)
	text = html.EscapeString(text)

	for _, pass := range passes {
		text = pass(text, rs)
	}

	out = rs.restore(text)
	if r.policy != nil {
		out = r.policy.Sanitize(out)
	}
	return strings.TrimSpace(out)
}

// passes run in this order on escaped text.
var passes = []func(string, *renderState) string{
	renderInlineCode,
	renderImages,
	renderLinks,
	renderHeaders,
	renderRules,
	renderBlockquotes,
	renderTables,
	renderBold,
	renderItalics,
	renderStrikethrough,
	renderUnorderedLists,
	renderOrderedLists,
	renderParagraphs,
	collapseEmptyParagraphs,
}

// =============================================================================
// PROTECTED REGIONS
// =============================================================================

// renderState holds finished fragments that later passes must not touch.
// They are replaced by NUL-delimited placeholders, which cannot occur in
// the input.
type renderState struct {
	blocks []string
	inline []string
}

func (s *renderState) protectBlock(fragment string) string {
	s.blocks = append(s.blocks, fragment)
	return "\x00B" + strconv.Itoa(len(s.blocks)-1) + "\x00"
}

func (s *renderState) protectInline(fragment string) string {
	s.inline = append(s.inline, fragment)
	return "\x00I" + strconv.Itoa(len(s.inline)-1) + "\x00"
}

var placeholderRe = regexp.MustCompile("\x00([BI])([0-9]+)\x00")

func (s *renderState) restore(text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		i, err := strconv.Atoi(sub[2])
		if err != nil {
			return ""
		}
		if sub[1] == "B" {
			if i < len(s.blocks) {
				return s.blocks[i]
			}
		} else if i < len(s.inline) {
			return s.inline[i]
		}
		return ""
	})
}

func isBlockPlaceholder(line string) bool {
	return strings.HasPrefix(line, "\x00B") && strings.HasSuffix(line, "\x00")
}

// =============================================================================
// CODE FENCES
// =============================================================================

// extractFences replaces every fenced code block with a block placeholder
// on its own line. A fence still open at the end of input is rendered with
// whatever body has arrived.
func (r *Renderer) extractFences(text string, rs *renderState) string {
	if !strings.Contains(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		lang, ok := fenceOpen(lines[i])
		if !ok {
			out = append(out, lines[i])
			continue
		}

		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if fenceClose(lines[j]) {
				break
			}
			body = append(body, lines[j])
		}

		out = append(out, rs.protectBlock(r.renderCodeBlock(lang, strings.Join(body, "\n"))))
		i = j
	}
	return strings.Join(out, "\n")
}

func fenceOpen(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	info := strings.TrimSpace(strings.TrimLeft(trimmed, "`"))
	if strings.Contains(info, "`") {
		return "", false
	}
	if f := strings.Fields(info); len(f) > 0 {
		return f[0], true
	}
	return "", true
}

func fenceClose(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") && strings.Trim(trimmed, "`") == ""
}

var langClassRe = regexp.MustCompile(`[^A-Za-z0-9_+#.-]`)

func (r *Renderer) renderCodeBlock(lang, code string) string {
	key := strings.ToLower(lang)
	if r.diagrams[key] {
		return fmt.Sprintf(`<div class="diagram diagram-%s" data-diagram-lang="%s" data-diagram-source="%s"></div>`,
			langClassRe.ReplaceAllString(key, ""), html.EscapeString(key), html.EscapeString(code))
	}

	class := langClassRe.ReplaceAllString(lang, "")
	codeAttr := ""
	if class != "" {
		codeAttr = ` class="language-` + class + `"`
	}

	if r.highlighter != nil {
		if highlighted, ok := r.highlighter.Highlight(code, lang); ok {
			return `<pre class="code-block chroma"><code` + codeAttr + `>` + highlighted + `</code></pre>`
		}
	}
	return `<pre class="code-block"><code` + codeAttr + `>` + html.EscapeString(code) + `</code></pre>`
}

// =============================================================================
// INLINE PASSES
// =============================================================================

var inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")

func renderInlineCode(text string, rs *renderState) string {
	return inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		return rs.protectInline("<code>" + m[1:len(m)-1] + "</code>")
	})
}

var (
	imageRe = regexp.MustCompile(`!\[([^\]\n]*)\]\(([^)\s]+)\)`)
	linkRe  = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
)

func renderImages(text string, rs *renderState) string {
	return imageRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRe.FindStringSubmatch(m)
		if !safeURL(sub[2]) {
			return m
		}
		return rs.protectInline(`<img src="` + sub[2] + `" alt="` + sub[1] + `">`)
	})
}

func renderLinks(text string, rs *renderState) string {
	return linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		if !safeURL(sub[2]) {
			return m
		}
		open := rs.protectInline(`<a href="` + sub[2] + `" target="_blank" rel="noopener noreferrer">`)
		return open + sub[1] + "</a>"
	})
}

// safeURL reports whether an escaped URL may be used as a link target.
func safeURL(escaped string) bool {
	u := strings.ToLower(strings.TrimSpace(html.UnescapeString(escaped)))
	if u == "" {
		return false
	}
	end := strings.IndexAny(u, "/?#")
	if end < 0 {
		end = len(u)
	}
	colon := strings.IndexByte(u[:end], ':')
	if colon < 0 {
		return true
	}
	switch u[:colon] {
	case "http", "https", "mailto":
		return true
	}
	return false
}

var (
	boldStarRe      = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	boldUnderRe     = regexp.MustCompile(`__([^_\n]+?)__`)
	italicStarRe    = regexp.MustCompile(`\*([^\s*](?:[^*\n]*?[^\s*])?)\*`)
	italicUnderRe   = regexp.MustCompile(`(^|[^\w])_([^\s_](?:[^_\n]*?[^\s_])?)_($|[^\w])`)
	strikethroughRe = regexp.MustCompile(`~~([^~\n]+?)~~`)
)

func renderBold(text string, _ *renderState) string {
	text = boldStarRe.ReplaceAllString(text, "<strong>$1</strong>")
	return boldUnderRe.ReplaceAllString(text, "<strong>$1</strong>")
}

func renderItalics(text string, _ *renderState) string {
	text = italicStarRe.ReplaceAllString(text, "<em>$1</em>")
	return italicUnderRe.ReplaceAllString(text, "$1<em>$2</em>$3")
}

func renderStrikethrough(text string, _ *renderState) string {
	return strikethroughRe.ReplaceAllString(text, "<del>$1</del>")
}

// =============================================================================
// BLOCK PASSES
// =============================================================================

var (
	h4Re         = regexp.MustCompile(`(?m)^#### +(.*?)[ \t]*$`)
	h3Re         = regexp.MustCompile(`(?m)^### +(.*?)[ \t]*$`)
	h2Re         = regexp.MustCompile(`(?m)^## +(.*?)[ \t]*$`)
	h1Re         = regexp.MustCompile(`(?m)^# +(.*?)[ \t]*$`)
	ruleRe       = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`)
	quoteRe      = regexp.MustCompile(`(?m)^&gt; ?(.*)$`)
	quoteJoinRe  = regexp.MustCompile(`</blockquote>\n<blockquote>`)
	ulItemRe     = regexp.MustCompile(`^[ \t]*[*-] +(.*)$`)
	olItemRe     = regexp.MustCompile(`^[ \t]*[0-9]+\. +(.*)$`)
	separatorRe  = regexp.MustCompile(`^[ \t]*\|?[ \t]*:?-+:?[ \t]*(?:\|[ \t]*:?-+:?[ \t]*)*\|?[ \t]*$`)
	emptyParaRe  = regexp.MustCompile(`<p>\s*</p>`)
	blockStartRe = regexp.MustCompile(`^<(?:h[1-4]|hr|blockquote|table|ul|ol|pre|div)[ >]`)
)

func renderHeaders(text string, _ *renderState) string {
	text = h4Re.ReplaceAllString(text, "<h4>$1</h4>")
	text = h3Re.ReplaceAllString(text, "<h3>$1</h3>")
	text = h2Re.ReplaceAllString(text, "<h2>$1</h2>")
	return h1Re.ReplaceAllString(text, "<h1>$1</h1>")
}

func renderRules(text string, _ *renderState) string {
	return ruleRe.ReplaceAllString(text, "<hr>")
}

func renderBlockquotes(text string, _ *renderState) string {
	text = quoteRe.ReplaceAllString(text, "<blockquote>$1</blockquote>")
	return quoteJoinRe.ReplaceAllString(text, "<br>")
}

// renderTables turns a line containing "|" followed by a separator line
// into a table. Following lines that contain "|" become body rows.
func renderTables(text string, _ *renderState) string {
	if !strings.Contains(text, "|") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !isTableRow(line) || i+1 >= len(lines) || !separatorRe.MatchString(lines[i+1]) {
			out = append(out, line)
			continue
		}

		var sb strings.Builder
		sb.WriteString("<table><thead><tr>")
		for _, cell := range splitCells(line) {
			sb.WriteString("<th>" + cell + "</th>")
		}
		sb.WriteString("</tr></thead>")

		j := i + 2
		if j < len(lines) && isTableRow(lines[j]) {
			sb.WriteString("<tbody>")
			for ; j < len(lines) && isTableRow(lines[j]); j++ {
				sb.WriteString("<tr>")
				for _, cell := range splitCells(lines[j]) {
					sb.WriteString("<td>" + cell + "</td>")
				}
				sb.WriteString("</tr>")
			}
			sb.WriteString("</tbody>")
		}
		sb.WriteString("</table>")

		out = append(out, sb.String())
		i = j - 1
	}
	return strings.Join(out, "\n")
}

func isTableRow(line string) bool {
	return strings.Contains(line, "|") && !strings.HasPrefix(strings.TrimSpace(line), "```")
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	cells := strings.Split(line, "|")
	if strings.HasPrefix(line, "|") {
		cells = cells[1:]
	}
	if strings.HasSuffix(line, "|") && len(cells) > 0 {
		cells = cells[:len(cells)-1]
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func renderUnorderedLists(text string, _ *renderState) string {
	return renderList(text, ulItemRe, "ul")
}

func renderOrderedLists(text string, _ *renderState) string {
	return renderList(text, olItemRe, "ol")
}

// renderList wraps each run of consecutive item lines in one list element.
func renderList(text string, item *regexp.Regexp, tag string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	var items []string
	flush := func() {
		if len(items) == 0 {
			return
		}
		out = append(out, "<"+tag+"><li>"+strings.Join(items, "</li><li>")+"</li></"+tag+">")
		items = items[:0]
	}

	for _, line := range lines {
		if m := item.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}

var paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n+`)

// renderParagraphs wraps runs of non-block lines in <p>, joining the lines
// of a run with <br>. Block lines pass through unchanged.
func renderParagraphs(text string, _ *renderState) string {
	chunks := paragraphSplitRe.Split(text, -1)
	out := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		var run []string
		flush := func() {
			if len(run) == 0 {
				return
			}
			out = append(out, "<p>"+strings.Join(run, "<br>")+"</p>")
			run = run[:0]
		}

		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if isBlockPlaceholder(trimmed) || blockStartRe.MatchString(trimmed) {
				flush()
				out = append(out, trimmed)
				continue
			}
			run = append(run, trimmed)
		}
		flush()
	}
	return strings.Join(out, "\n")
}

func collapseEmptyParagraphs(text string, _ *renderState) string {
	return emptyParaRe.ReplaceAllString(text, "")
}
