// Package template renders reminder message bodies from {{placeholder}}
// templates.
package template

import "strings"

// Data carries the values a reminder template can reference.
type Data struct {
	Name  string
	Start string
	End   string
	Hours string
}

// DefaultEmailSubject is used when no custom subject template is configured.
const DefaultEmailSubject = "Your appointment is in {{hours}} hours"

// DefaultEmailBody is the fallback email template.
const DefaultEmailBody = "Hello {{name}},\n\n" +
	"This is a reminder that your appointment starts at {{start}}, " +
	"in about {{hours}} hours.\n\n" +
	"See you soon,\nVoyago"

// DefaultSMSBody is the fallback SMS template.
const DefaultSMSBody = "Voyago reminder: your appointment starts at {{start}} (in {{hours}}h)."

// Render substitutes {{name}}, {{start}}, {{end}} and {{hours}} in the
// template. Unknown placeholders are left in place so typos show up in the
// rendered output rather than vanishing.
func Render(tmpl string, d Data) string {
	r := strings.NewReplacer(
		"{{name}}", d.Name,
		"{{start}}", d.Start,
		"{{end}}", d.End,
		"{{hours}}", d.Hours,
	)
	return r.Replace(tmpl)
}
