package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// pageTemplates is the parsed set of all page templates.
var pageTemplates = mustParseTemplates()

func mustParseTemplates() *template.Template {
	t, err := template.New("").ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		panic("parse templates: " + err.Error())
	}
	return t
}

// executeTemplate executes the named template (e.g. "index") with data into w.
func executeTemplate(w io.Writer, name string, data interface{}) error {
	return pageTemplates.ExecuteTemplate(w, name, data)
}

// executeTemplateToBytes runs executeTemplate into a buffer so a failed render never sends a partial page.
func executeTemplateToBytes(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := executeTemplate(&buf, name, data)
	return buf.Bytes(), err
}
