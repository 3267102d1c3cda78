// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	classAttrRe = regexp.MustCompile(`^[A-Za-z0-9_ +#.-]+$`)
	targetRe    = regexp.MustCompile(`^_blank$`)
	relRe       = regexp.MustCompile(`^noopener noreferrer$`)
	langAttrRe  = regexp.MustCompile(`^[a-z0-9_+#.-]+$`)
)

// newPolicy allows exactly the elements and attributes Render emits.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4",
		"strong", "em", "del", "code", "pre", "span", "div",
		"blockquote", "ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class").Matching(classAttrRe).Globally()

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(targetRe).OnElements("a")
	p.AllowAttrs("rel").Matching(relRe).OnElements("a")
	p.AllowImages()

	p.AllowAttrs("data-diagram-lang").Matching(langAttrRe).OnElements("div")
	p.AllowAttrs("data-diagram-source").OnElements("div")

	return p
}

// Sanitize applies the renderer's strict allow-list policy to an HTML
// fragment produced elsewhere.
func Sanitize(fragment string) string {
	return newPolicy().Sanitize(fragment)
}
