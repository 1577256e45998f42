package template

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	got := Render("Hi {{name}}, see you at {{start}} in {{hours}}h", Data{
		Name:  "Ama",
		Start: "2025-06-03 10:00",
		Hours: "24",
	})
	want := "Hi Ama, see you at 2025-06-03 10:00 in 24h"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	got := Render("Hi {{nmae}}", Data{Name: "Ama"})
	if got != "Hi {{nmae}}" {
		t.Fatalf("unknown placeholders must survive, got %q", got)
	}
}

func TestDefaultTemplatesRenderCleanly(t *testing.T) {
	d := Data{Name: "Kofi", Start: "2025-06-03 10:00", End: "2025-06-03 11:00", Hours: "2"}
	for _, tmpl := range []string{DefaultEmailSubject, DefaultEmailBody, DefaultSMSBody} {
		out := Render(tmpl, d)
		if strings.Contains(out, "{{") {
			t.Fatalf("default template left a placeholder unrendered: %q", out)
		}
	}
}
