// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"bytes"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "github"

// Highlighter turns a code block into highlighted HTML.
//
// Highlight returns ok=false when it does not recognize the language; the
// renderer then falls back to plain escaped code. The returned HTML must
// already be escaped and must not include the surrounding <pre> element.
type Highlighter interface {
	Highlight(code, language string) (string, bool)
}

// ChromaHighlighter highlights code with chroma and emits class-based HTML.
// Pair it with WriteCSS to get the matching stylesheet.
type ChromaHighlighter struct {
	style     *chroma.Style
	formatter *html.Formatter
	// Detect enables content-based language detection when a fence has
	// no language tag.
	Detect bool
}

// NewChromaHighlighter creates a highlighter for the named chroma style.
// Unknown style names fall back to DefaultStyle.
func NewChromaHighlighter(styleName string) *ChromaHighlighter {
	style := chromaStyles.Get(styleName)
	if style == nil || style == chromaStyles.Fallback {
		style = chromaStyles.Get(DefaultStyle)
	}
	if style == nil {
		style = chromaStyles.Fallback
	}
	return &ChromaHighlighter{
		style: style,
		formatter: html.New(
			html.WithClasses(true),
			html.PreventSurroundingPre(true),
		),
		Detect: true,
	}
}

// StyleName returns the name of the active chroma style.
func (h *ChromaHighlighter) StyleName() string {
	return h.style.Name
}

// Highlight implements Highlighter.
func (h *ChromaHighlighter) Highlight(code, language string) (string, bool) {
	lexer := h.lexerFor(code, language)
	if lexer == nil {
		return "", false
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return "", false
	}
	return buf.String(), true
}

func (h *ChromaHighlighter) lexerFor(code, language string) chroma.Lexer {
	language = strings.ToLower(strings.TrimSpace(language))
	if language != "" {
		return lexers.Get(language)
	}
	if !h.Detect {
		return nil
	}
	return lexers.Analyse(code)
}

// WriteCSS writes the stylesheet for the highlighter's classes.
func (h *ChromaHighlighter) WriteCSS(w io.Writer) error {
	return h.formatter.WriteCSS(w, h.style)
}

// DetectLanguage guesses the language of a code snippet, or returns "".
func DetectLanguage(code string) string {
	lexer := lexers.Analyse(code)
	if lexer == nil {
		return ""
	}
	return strings.ToLower(lexer.Config().Name)
}
