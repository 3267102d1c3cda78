// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"fmt"
	"html"
	"strings"
)

// Document wraps a rendered fragment in a standalone HTML page with the
// base stylesheet and any extra CSS (such as the chroma stylesheet).
func Document(title, body, extraCSS string) string {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(title)))
	sb.WriteString("    <meta name=\"generator\" content=\"samchat\">\n")
	sb.WriteString("    <style>\n")
	sb.WriteString(baseCSS)
	if extraCSS != "" {
		sb.WriteString(extraCSS)
		sb.WriteString("\n")
	}
	sb.WriteString("    </style>\n")
	sb.WriteString("</head>\n")
	sb.WriteString("<body>\n")
	sb.WriteString("<main class=\"message\">\n")
	sb.WriteString(body)
	sb.WriteString("\n</main>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return sb.String()
}

const baseCSS = `        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
            --border-color: #d0d7de;
            --code-bg: #f6f8fa;
            --accent-green: #1a7f37;
            --accent-red: #cf222e;
            --accent-blue: #0969da;
        }
        body { font-family: var(--font-sans); line-height: 1.6; max-width: 860px; margin: 2rem auto; padding: 0 1rem; }
        code { font-family: var(--font-mono); background: var(--code-bg); padding: 0.1em 0.3em; border-radius: 4px; }
        pre.code-block { background: var(--code-bg); padding: 1rem; overflow-x: auto; border-radius: 6px; }
        pre.code-block code { padding: 0; background: none; }
        blockquote { border-left: 4px solid var(--border-color); padding-left: 1rem; color: #57606a; }
        table { border-collapse: collapse; margin: 1rem 0; }
        th, td { border: 1px solid var(--border-color); padding: 0.3rem 0.7rem; }
        .diagram { border: 1px dashed var(--border-color); padding: 1rem; white-space: pre; font-family: var(--font-mono); }
        .diagram::before { content: attr(data-diagram-source); }
        .tool-card { border: 1px solid var(--border-color); border-radius: 6px; margin: 0.5rem 0; padding: 0.5rem 0.8rem; }
        .tool-card__header { display: flex; gap: 0.5rem; font-weight: 600; }
        .tool-card__status { margin-left: auto; font-weight: normal; color: #57606a; }
        .tool-card--success .tool-card__icon { color: var(--accent-green); }
        .tool-card--failed .tool-card__icon { color: var(--accent-red); }
        .tool-card--running .tool-card__icon { color: var(--accent-blue); }
        .tool-card__details { font-family: var(--font-mono); font-size: 0.9em; white-space: pre-wrap; }
`
