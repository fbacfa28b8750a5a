package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Markdown renders the artifact as a markdown document.
func Markdown(a *Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Topic)
	fmt.Fprintf(&b, "_%s · %d konu · %s_\n\n", a.Timestamp.Format("2006-01-02 15:04"), a.Summary.TotalSubtopics, a.Summary.Sources)
	for i, s := range a.Subtopics {
		fmt.Fprintf(&b, "## %d. %s\n\n%s\n\n", i+1, s.Title, strings.TrimSpace(s.Description))
	}
	return b.String()
}

// ToHTML converts markdown to sanitized HTML. Model output is untrusted, so
// the rendered fragment always goes through the UGC policy.
func ToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return bluemonday.UGCPolicy().SanitizeBytes(markdown.ToHTML([]byte(md), p, r))
}

// RenderHTML returns a standalone HTML page for the artifact.
func RenderHTML(a *Artifact) []byte {
	var buf bytes.Buffer
	_ = page.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: a.Topic,
		Body:  template.HTML(ToHTML(Markdown(a))),
	})
	return buf.Bytes()
}
