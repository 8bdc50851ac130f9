package app

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/nourx/mailer/internal/domain"
)

// RenderTemplate substitutes variables into a template's subject and bodies.
// Rendering happens at enqueue time; the outbox stores the result so a
// template edit never changes mail that is already queued.
func RenderTemplate(tmpl domain.EmailTemplate, variables map[string]string) (subject, htmlContent, textContent string, err error) {
	for _, name := range tmpl.Variables {
		if _, ok := variables[name]; !ok {
			return "", "", "", fmt.Errorf("template %q: missing variable %q", tmpl.Name, name)
		}
	}

	subject, err = renderText(tmpl.Name+":subject", tmpl.Subject, variables)
	if err != nil {
		return "", "", "", err
	}

	htmlContent, err = renderHTML(tmpl.Name+":html", tmpl.HTMLContent, variables)
	if err != nil {
		return "", "", "", err
	}

	if tmpl.TextContent.Valid {
		textContent, err = renderText(tmpl.Name+":text", tmpl.TextContent.String, variables)
		if err != nil {
			return "", "", "", err
		}
	}

	return subject, htmlContent, textContent, nil
}

func renderText(name, text string, variables map[string]string) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var b strings.Builder
	if err := t.Execute(&b, variables); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return b.String(), nil
}

// renderHTML goes through html/template so variable values are escaped in
// the HTML body.
func renderHTML(name, text string, variables map[string]string) (string, error) {
	t, err := htmltemplate.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var b strings.Builder
	if err := t.Execute(&b, variables); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return b.String(), nil
}
