// Package template renders action parameters against subject records, so
// message bodies and task titles can reference patient fields.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Render executes templateStr with the subject record exposed as .subject
// and any extra values merged at the top level. Used both by the live
// send-message path and by dry-run previews.
func Render(templateStr string, subject map[string]any, extra map[string]any) (string, error) {
	data := map[string]any{
		"subject": subject,
	}
	for k, v := range extra {
		data[k] = v
	}

	tmpl, err := template.
		New("action").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"date": func() string {
				return time.Now().UTC().Format("2006-01-02")
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	// missingkey=zero renders absent map keys as "<no value>"; collapse those
	// so a sparse patient record produces a clean message.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
