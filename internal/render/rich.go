package render

import (
	"bytes"
	"fmt"
	"html/template"

	"docbatch/internal/domain/model"
)

type richSection struct {
	Index         int
	Filename      string
	PagesLabel    string
	Text          string
	Empty         bool
	Tables        []richTable
	MathFragments []string
	Last          bool
}

type richTable struct {
	Caption string
	Header  []string
	Rows    [][]string
}

type richDoc struct {
	Name        string
	Description string
	Summary     string
	Sections    []richSection
}

// Styled HTML meant for conversion into a word-processor document. Styles are
// inline so converters that drop <style> blocks keep the look.
var richTmpl = template.Must(template.New("rich").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
</head>
<body style="font-family: Georgia, 'Times New Roman', serif; font-size: 11pt; line-height: 1.5; color: #222222; margin: 2cm;">
<h1 style="font-size: 22pt; border-bottom: 2px solid #333333; padding-bottom: 6px;">{{.Name}}</h1>
{{- if .Description}}
<p style="font-style: italic; color: #555555;">{{.Description}}</p>
{{- end}}
<p style="color: #555555;">{{.Summary}}</p>
<h2 style="font-size: 14pt;">Contents</h2>
<ol>
{{- range .Sections}}
<li><a href="#file-{{.Index}}">{{.Filename}}</a></li>
{{- end}}
</ol>
<div style="page-break-after: always"></div>
{{- range .Sections}}
<section id="file-{{.Index}}">
<h2 style="font-size: 16pt; color: #1a1a1a; border-bottom: 1px solid #999999;">{{.Index}}. {{.Filename}}</h2>
<p style="font-size: 9pt; color: #777777;">{{.PagesLabel}}</p>
{{- if .Empty}}
<p style="color: #999999; font-style: italic;">{{.Text}}</p>
{{- else}}
<div style="white-space: pre-wrap;">{{.Text}}</div>
{{- end}}
{{- range .Tables}}
<table style="border-collapse: collapse; width: 100%; margin: 12px 0; font-size: 10pt;">
<caption style="text-align: left; font-weight: bold; padding: 4px 0;">{{.Caption}}</caption>
<thead><tr>{{range .Header}}<th style="border: 1px solid #666666; background-color: #e8e8e8; padding: 4px 8px; text-align: left;">{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td style="border: 1px solid #999999; padding: 4px 8px;">{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
{{- end}}
{{- range .MathFragments}}
<div class="math" style="font-family: 'Cambria Math', serif; background-color: #f6f6f6; padding: 6px 10px; margin: 8px 0;">{{.}}</div>
{{- end}}
</section>
{{- if not .Last}}
<div style="page-break-after: always"></div>
{{- end}}
{{- end}}
</body>
</html>
`))

// Rich renders styled HTML with page breaks between files.
func Rich(doc Document) ([]byte, error) {
	data := richDoc{
		Name:        doc.Name,
		Description: doc.Description,
		Summary:     fmt.Sprintf("%d files, %s", len(doc.Sections), pagesLabel(doc.TotalPages())),
	}
	for i, s := range doc.Sections {
		rs := richSection{
			Index:         i + 1,
			Filename:      s.Filename,
			PagesLabel:    pagesLabel(s.Pages),
			Text:          s.body(),
			Empty:         s.blank(),
			MathFragments: s.MathFragments,
			Last:          i == len(doc.Sections)-1,
		}
		for ti, t := range s.Tables {
			rs.Tables = append(rs.Tables, toRichTable(ti, t))
		}
		data.Sections = append(data.Sections, rs)
	}

	var buf bytes.Buffer
	if err := richTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render rich: %w", err)
	}
	return buf.Bytes(), nil
}

func toRichTable(i int, t model.Table) richTable {
	rows := normalizeRows(t.Rows)
	rt := richTable{Caption: t.Caption}
	if rt.Caption == "" {
		rt.Caption = fmt.Sprintf("Table %d", i+1)
	}
	if len(rows) > 0 {
		rt.Header = rows[0]
		rt.Rows = rows[1:]
	}
	return rt
}
