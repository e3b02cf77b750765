package render

import (
	"fmt"
	"strings"
)

const ruleWidth = 80

var (
	bannerRule  = strings.Repeat("=", ruleWidth)
	sectionRule = strings.Repeat("-", ruleWidth)
)

// Plain renders a banner, then each file under a fixed-width header.
func Plain(doc Document) []byte {
	var b strings.Builder
	n := len(doc.Sections)

	b.WriteString(bannerRule + "\n")
	b.WriteString(doc.Name + "\n")
	if doc.Description != "" {
		b.WriteString(doc.Description + "\n")
	}
	fmt.Fprintf(&b, "Files: %d | Total pages: %d\n", n, doc.TotalPages())
	b.WriteString(bannerRule + "\n")

	for i, s := range doc.Sections {
		b.WriteString("\n" + sectionRule + "\n")
		fmt.Fprintf(&b, "[%d/%d] %s (%s)\n", i+1, n, s.Filename, pagesLabel(s.Pages))
		b.WriteString(sectionRule + "\n\n")
		b.WriteString(strings.TrimRight(s.body(), "\n") + "\n")
	}
	return []byte(b.String())
}
