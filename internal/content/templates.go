package content

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.New("content").ParseFS(templateFS, "templates/*.html"))

type layoutData struct {
	Lang     string
	Title    string
	TOCLabel string
	Main     template.HTML
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// formatBody renders plain entry text: blank lines separate paragraphs and
// single newlines become line breaks.
func formatBody(body string) template.HTML {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var b strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = template.HTMLEscapeString(line)
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>\n"))
		b.WriteString("</p>\n")
	}
	return template.HTML(b.String())
}

// strong wraps an escaped value for use as a translation argument.
func strong(value string) string {
	return "<strong>" + template.HTMLEscapeString(value) + "</strong>"
}
