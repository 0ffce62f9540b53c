// Package personalize renders per-recipient placeholders such as
// {{ name }} and {{ first_name }} into campaign subjects and bodies using
// the Liquid template language.
package personalize

import (
	"html"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// Engine parses templates once per campaign. It is safe for concurrent use.
type Engine struct {
	engine *liquid.Engine
}

// NewEngine returns an Engine with the "default" filter registered:
// {{ first_name | default: "there" }}.
func NewEngine() *Engine {
	e := liquid.NewEngine()
	e.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		return value
	})
	return &Engine{engine: e}
}

// Template is a parsed subject/body pair. A part that failed to parse, or
// that has no Liquid markup, renders as its raw text.
type Template struct {
	subject, body       string
	subjectTpl, bodyTpl *liquid.Template
	escape              bool
}

// Prepare parses subject and body. isHTML escapes bound values in the body.
// Parse errors are logged and the raw text is kept.
func (e *Engine) Prepare(subject, body string, isHTML bool) *Template {
	return &Template{
		subject:    subject,
		body:       body,
		subjectTpl: e.parse("subject", subject),
		bodyTpl:    e.parse("body", body),
		escape:     isHTML,
	}
}

func (e *Engine) parse(part, text string) *liquid.Template {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return nil
	}
	tpl, err := e.engine.ParseString(text)
	if err != nil {
		logger.Warn("personalize: template parse failed, sending raw text", "part", part, "error", err)
		return nil
	}
	return tpl
}

// Render returns the subject and body for one recipient.
func (t *Template) Render(r domain.Recipient) (subject, body string) {
	subject = render(t.subjectTpl, t.subject, bindings(r, false))
	body = render(t.bodyTpl, t.body, bindings(r, t.escape))
	return subject, body
}

func render(tpl *liquid.Template, raw string, b liquid.Bindings) string {
	if tpl == nil {
		return raw
	}
	out, err := tpl.RenderString(b)
	if err != nil {
		logger.Warn("personalize: render failed, sending raw text", "error", err)
		return raw
	}
	return out
}

func bindings(r domain.Recipient, escape bool) liquid.Bindings {
	name := strings.TrimSpace(r.Name)
	first := name
	if i := strings.IndexAny(name, " \t"); i > 0 {
		first = name[:i]
	}
	email := r.Email
	if escape {
		name, first, email = html.EscapeString(name), html.EscapeString(first), html.EscapeString(email)
	}
	return liquid.Bindings{
		"name":       name,
		"first_name": first,
		"email":      email,
	}
}
