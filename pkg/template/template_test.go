package template_test

import (
	"testing"

	"github.com/careloop/careloop/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubjectFields(t *testing.T) {
	subject := map[string]any{
		"first_name": "Ana",
		"insurance":  map[string]any{"provider": "acme"},
	}

	out, err := template.Render("Hi {{.subject.first_name}}, your plan is {{.subject.insurance.provider}}", subject, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, your plan is acme", out)
}

func TestRenderMissingFieldRendersEmpty(t *testing.T) {
	out, err := template.Render("Hi {{.subject.first_name}}!", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi !", out)
}

func TestRenderExtraValues(t *testing.T) {
	out, err := template.Render("{{.clinic_name}}: see you soon", nil, map[string]any{"clinic_name": "Northside PT"})
	require.NoError(t, err)
	assert.Equal(t, "Northside PT: see you soon", out)
}

func TestRenderParseError(t *testing.T) {
	_, err := template.Render("{{.subject.", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRenderDateFunc(t *testing.T) {
	out, err := template.Render("{{date}}", nil, nil)
	require.NoError(t, err)
	assert.Len(t, out, 10) // YYYY-MM-DD
}
