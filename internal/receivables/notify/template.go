package notify

import (
	"errors"
	"strconv"
	"strings"
	"text/template"
)

// DefaultTemplate is used when no custom template is configured.
const DefaultTemplate = `[Receivable Overdue]
Company: {{.CompanyID}}
Customer: {{or .CustomerID "-"}}
Entry: {{.EntryID}}
Outstanding: {{.Outstanding}}
Accrued Interest: {{.AccruedInterest}}
{{- if .OverdueSince}}
Overdue Since: {{.OverdueSince}} ({{plural .DaysOverdue "day"}})
{{- end}}
Detected At: {{.DetectedAt}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	CompanyID       string
	CustomerID      string
	EntryID         string
	Outstanding     string
	AccruedInterest string
	OverdueSince    string
	DaysOverdue     int
	DetectedAt      string
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"plural": func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return strconv.Itoa(n) + " " + unit + "s"
	},
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template; blank input selects DefaultTemplate.
func NewTemplate(text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	parsed, err := template.New("overdue").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("overdue template: nil")
	}
	var out strings.Builder
	if err := t.tpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
