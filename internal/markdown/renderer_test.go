// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"html"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_CodeBlockPreservedOnce(t *testing.T) {
	code := `x := a * b * c // <tag> & "q" _not_ **bold**`
	input := "Intro\n\n```go\n" + code + "\n```\n\nAfter **bold**"

	out := New(Options{}).Render(input)

	escaped := html.EscapeString(code)
	assert.Equal(t, 1, strings.Count(out, escaped), "code must appear exactly once, escaped once")
	assert.NotContains(t, out, "<em>")
	assert.Equal(t, 1, strings.Count(out, "<strong>"))
	assert.Contains(t, out, `<pre class="code-block"><code class="language-go">`)
	assert.Contains(t, out, "<p>After <strong>bold</strong></p>")
	assert.NotContains(t, out, "&amp;lt;", "code must not be double escaped")
}

func TestRender_Escaping(t *testing.T) {
	out := New(Options{}).Render(`5 < 6 & "x" > 'y'`)
	assert.Equal(t, "<p>5 &lt; 6 &amp; &#34;x&#34; &gt; &#39;y&#39;</p>", out)
}

func TestRender_Table(t *testing.T) {
	r := New(Options{})

	out := r.Render("a | b\n---|---\n1 | 2")
	assert.Equal(t,
		"<table><thead><tr><th>a</th><th>b</th></tr></thead><tbody><tr><td>1</td><td>2</td></tr></tbody></table>",
		out)

	out = r.Render("| h1 | h2 |\n| :-- | --: |\n| x | y |\n| z | w |\nafter")
	assert.Contains(t, out, "<th>h1</th><th>h2</th>")
	assert.Contains(t, out, "<tr><td>x</td><td>y</td></tr><tr><td>z</td><td>w</td></tr>")
	assert.Contains(t, out, "<p>after</p>")
}

func TestRender_TableNeedsSeparator(t *testing.T) {
	out := New(Options{}).Render("a | b\n1 | 2")
	assert.NotContains(t, out, "<table")
	assert.Equal(t, "<p>a | b<br>1 | 2</p>", out)
}

func TestRender_TableHeaderOnly(t *testing.T) {
	out := New(Options{}).Render("a | b\n--|--")
	assert.Equal(t, "<table><thead><tr><th>a</th><th>b</th></tr></thead></table>", out)
}

func TestRender_Blocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"headers", "# Title\n## Sub\n### Third\n#### Fourth", "<h1>Title</h1>\n<h2>Sub</h2>\n<h3>Third</h3>\n<h4>Fourth</h4>"},
		{"rule", "a\n\n---\n\nb", "<p>a</p>\n<hr>\n<p>b</p>"},
		{"blockquote", "> a\n> b", "<blockquote>a<br>b</blockquote>"},
		{"unordered", "- one\n* two", "<ul><li>one</li><li>two</li></ul>"},
		{"ordered", "1. first\n2. second", "<ol><li>first</li><li>second</li></ol>"},
		{"lists", "- one\n- two\n\n1. first", "<ul><li>one</li><li>two</li></ul>\n<ol><li>first</li></ol>"},
		{"paragraphs", "one\ntwo\n\nthree", "<p>one<br>two</p>\n<p>three</p>"},
		{"empty", "", ""},
		{"blank lines", "\n\n\n", ""},
	}

	r := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Render(tt.input))
		})
	}
}

func TestRender_Inline(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold", "**a** and __b__", "<p><strong>a</strong> and <strong>b</strong></p>"},
		{"italic", "*a* and _b_", "<p><em>a</em> and <em>b</em></p>"},
		{"snake case", "snake_case_name and _em_", "<p>snake_case_name and <em>em</em></p>"},
		{"strikethrough", "~~gone~~", "<p><del>gone</del></p>"},
		{"inline code", "use `a*b*c` now", "<p>use <code>a*b*c</code> now</p>"},
		{"inline code escaped", "`<b>`", "<p><code>&lt;b&gt;</code></p>"},
		{"bold in header", "## **Big**", "<h2><strong>Big</strong></h2>"},
	}

	r := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Render(tt.input))
		})
	}
}

func TestRender_Links(t *testing.T) {
	r := New(Options{})

	out := r.Render("See [docs](https://example.com/a?b=1&c=2)")
	assert.Equal(t,
		`<p>See <a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener noreferrer">docs</a></p>`,
		out)

	out = r.Render("[**x**](/relative/path)")
	assert.Contains(t, out, `<a href="/relative/path"`)
	assert.Contains(t, out, "<strong>x</strong></a>")

	out = r.Render("[x](javascript:alert(1))")
	assert.NotContains(t, out, "href")
	assert.Equal(t, "<p>[x](javascript:alert(1))</p>", out)

	out = r.Render("![logo](https://example.com/logo_big_image.png)")
	assert.Equal(t, `<p><img src="https://example.com/logo_big_image.png" alt="logo"></p>`, out)

	out = r.Render("![x](data:image/png;base64,AAAA)")
	assert.NotContains(t, out, "<img")
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com", true},
		{"mailto:a@b.c", true},
		{"/path", true},
		{"#anchor", true},
		{"page.html?x=1:2", true},
		{"javascript:alert(1)", false},
		{"JavaScript:alert(1)", false},
		{"data:text/html,x", false},
		{"vbscript:x", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeURL(html.EscapeString(tt.url)), tt.url)
	}
}

func TestRender_Diagram(t *testing.T) {
	out := New(Options{}).Render("```mermaid\ngraph TD; A-->B\n```")
	assert.Equal(t,
		`<div class="diagram diagram-mermaid" data-diagram-lang="mermaid" data-diagram-source="graph TD; A--&gt;B"></div>`,
		out)

	out = New(Options{DiagramLanguages: []string{"dot"}}).Render("```mermaid\ngraph\n```")
	assert.Contains(t, out, `<pre class="code-block"><code class="language-mermaid">graph</code></pre>`)
}

func TestRender_UnclosedFence(t *testing.T) {
	out := New(Options{}).Render("text\n```python\nprint(1)\n**x**")
	assert.Equal(t,
		"<p>text</p>\n<pre class=\"code-block\"><code class=\"language-python\">print(1)\n**x**</code></pre>",
		out)
}

func TestRender_FenceWithoutLanguage(t *testing.T) {
	out := New(Options{}).Render("```\nplain\n```")
	assert.Equal(t, `<pre class="code-block"><code>plain</code></pre>`, out)
}

func TestRender_NulInInput(t *testing.T) {
	out := New(Options{}).Render("a\x00B0\x00b")
	assert.NotContains(t, out, "\x00")
	assert.Equal(t, "<p>a�B0�b</p>", out)
}

func TestRender_CRLF(t *testing.T) {
	out := New(Options{}).Render("# T\r\n\r\nbody")
	assert.Equal(t, "<h1>T</h1>\n<p>body</p>", out)
}

type fakeHighlighter struct {
	panics bool
}

func (f fakeHighlighter) Highlight(code, lang string) (string, bool) {
	if f.panics {
		panic("boom")
	}
	if lang != "go" {
		return "", false
	}
	return "<span>HL</span>", true
}

func TestRender_Highlighter(t *testing.T) {
	r := New(Options{Highlighter: fakeHighlighter{}})

	out := r.Render("```go\nfunc main() {}\n```")
	assert.Equal(t, `<pre class="code-block chroma"><code class="language-go"><span>HL</span></code></pre>`, out)

	out = r.Render("```rust\nfn main() {}\n```")
	assert.Equal(t, `<pre class="code-block"><code class="language-rust">fn main() {}</code></pre>`, out)
}

func TestRender_RecoversFromPanic(t *testing.T) {
	r := New(Options{Highlighter: fakeHighlighter{panics: true}})
	out := r.Render("<b>\n```go\nx\n```")
	assert.Equal(t, "<p>&lt;b&gt;\n```go\nx\n```</p>", out)
}

func TestRender_Deterministic(t *testing.T) {
	input := "# Head\n\nSome *text* with `code` and [a link](https://x.y).\n\n" +
		"| a | b |\n|---|---|\n| 1 | 2 |\n\n```go\nfmt.Println(\"hi\")\n```\n\n- one\n- two\n"
	r := New(Options{Highlighter: NewChromaHighlighter("github")})

	first := r.Render(input)
	require.NotEmpty(t, first)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Render(input)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, first, got)
	}
}

func TestRender_Streaming(t *testing.T) {
	full := "Here is code:\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n\nDone **now**."
	r := New(Options{})

	// Every prefix renders without panicking into something non-empty.
	for i := 1; i <= len(full); i++ {
		out := r.Render(full[:i])
		assert.NotEmpty(t, out, "prefix %d", i)
	}
	assert.Contains(t, r.Render(full), "<p>Done <strong>now</strong>.</p>")
}

func TestRender_Sanitize(t *testing.T) {
	r := New(Options{Sanitize: true})

	out := r.Render("**hi** [x](https://a.b)")
	assert.Contains(t, out, "<strong>hi</strong>")
	assert.Contains(t, out, `href="https://a.b"`)

	out = r.Render("```mermaid\nA-->B\n```")
	assert.Contains(t, out, "data-diagram-source")

	assert.Equal(t, "<p>ok</p>", Sanitize(`<script>alert(1)</script><p onclick="x()">ok</p>`))
}
