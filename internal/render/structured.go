package render

import (
	"fmt"
	"strings"

	"docbatch/internal/domain/model"
)

// Structured renders Markdown: a linked table of contents, then one anchored
// section per file with its text, tables as pipe grids and math blocks.
func Structured(doc Document) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.Name)
	if doc.Description != "" {
		b.WriteString(doc.Description + "\n\n")
	}
	fmt.Fprintf(&b, "_%d files, %s_\n\n", len(doc.Sections), pagesLabel(doc.TotalPages()))

	b.WriteString("## Contents\n\n")
	for i, s := range doc.Sections {
		fmt.Fprintf(&b, "%d. [%s](#file-%d)\n", i+1, escapeMarkdown(s.Filename), i+1)
	}

	for i, s := range doc.Sections {
		fmt.Fprintf(&b, "\n---\n\n<a id=\"file-%d\"></a>\n\n## %d. %s\n\n", i+1, i+1, escapeMarkdown(s.Filename))
		fmt.Fprintf(&b, "_%s_\n\n", pagesLabel(s.Pages))
		b.WriteString(strings.TrimRight(s.body(), "\n") + "\n")

		for ti, t := range s.Tables {
			b.WriteString("\n")
			caption := t.Caption
			if caption == "" {
				caption = fmt.Sprintf("Table %d", ti+1)
			}
			fmt.Fprintf(&b, "**%s**\n\n", escapeMarkdown(caption))
			writeMarkdownTable(&b, t)
		}

		if len(s.MathFragments) > 0 {
			b.WriteString("\n")
			for _, m := range s.MathFragments {
				fmt.Fprintf(&b, "$$\n%s\n$$\n", strings.TrimSpace(m))
			}
		}
	}
	return []byte(b.String())
}

func writeMarkdownTable(b *strings.Builder, t model.Table) {
	rows := normalizeRows(t.Rows)
	if len(rows) == 0 {
		return
	}
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + escapeCell(c) + " |")
		}
		b.WriteString("\n")
	}
	writeRow(rows[0])
	b.WriteString("|")
	for range rows[0] {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
}

// normalizeRows pads ragged rows to the widest row.
func normalizeRows(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, width)
		copy(row, r)
		out[i] = row
	}
	return out
}

var cellReplacer = strings.NewReplacer("|", "\\|", "\r\n", " ", "\n", " ")

func escapeCell(s string) string {
	return cellReplacer.Replace(strings.TrimSpace(s))
}

var mdReplacer = strings.NewReplacer("[", "\\[", "]", "\\]", "*", "\\*", "_", "\\_", "`", "\\`")

func escapeMarkdown(s string) string {
	return mdReplacer.Replace(s)
}
