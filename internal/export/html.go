/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"dialogical/internal/domain"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders doc as a Markdown proof. Page text is kept verbatim in
// fenced blocks so authored line breaks survive.
func Markdown(doc *domain.Document) string {
	var b strings.Builder
	title := doc.Source
	if title == "" {
		title = "Dialogue proof"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%d segments, %d pages\n\n", len(doc.Segments), doc.PageCount())

	voices := domain.NewVoiceTracker()
	for _, seg := range doc.Segments {
		if seg.ID == "" {
			fmt.Fprintf(&b, "## (implicit segment)\n\n")
		} else {
			fmt.Fprintf(&b, "## `%s`\n\n", seg.ID)
		}
		fmt.Fprintf(&b, "*line %d*\n\n", seg.Line)

		for i, p := range seg.Pages {
			text := strings.TrimRight(p.Text(), "\n")
			fence := "```"
			for strings.Contains(text, fence) {
				fence += "`"
			}
			voice := voices.Next(p.Meta).Label()
			fmt.Fprintf(&b, "**Page %d** (line %d) - %s\n\n%s\n%s\n%s\n\n", i+1, p.Line, voice, fence, text, fence)
		}

		if len(seg.Choices) > 0 {
			b.WriteString("| Choice | Target |\n| --- | --- |\n")
			for _, c := range seg.Choices {
				target := ""
				if c.Target != nil {
					target = fmt.Sprintf("%s `%s`", c.Target.Kind, c.Target.Name)
				}
				fmt.Fprintf(&b, "| %s | %s |\n", strings.ReplaceAll(c.Label, "|", `\|`), target)
			}
			b.WriteString("\n")
		}
		if seg.Exit != nil {
			fmt.Fprintf(&b, "Exit: %s `%s`\n\n", seg.Exit.Kind, seg.Exit.Name)
		}
	}
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// WriteHTMLProof renders doc as a standalone HTML page.
func WriteHTMLProof(w io.Writer, doc *domain.Document) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(doc)), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	title := doc.Source
	if title == "" {
		title = "Dialogue proof"
	}
	_, err := fmt.Fprintf(w, htmlPage, html.EscapeString(title), body.String())
	if err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 48em; margin: 2em auto; }
pre { background: #f5f5f5; padding: .75em; border-left: 3px solid #999; white-space: pre-wrap; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .25em .5em; }
</style>
</head>
<body>
%s</body>
</html>
`
