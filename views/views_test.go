package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestSectionClass(t *testing.T) {
	tests := map[string]string{
		"":         "section section--default",
		"default":  "section section--default",
		"layout-2": "section section--layout-2",
	}
	for in, want := range tests {
		if got := SectionClass(in); got != want {
			t.Errorf("SectionClass(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHomeRendersPublishedSections(t *testing.T) {
	site := SiteConfig{Name: "Friends of the Park", URL: "https://park.example"}
	out := render(t, Home(site, []Section{
		{Name: "hero", Layout: "layout-2", Content: map[string]string{"title": "**Welcome**"}, ImageURL: "/public/uploads/a.jpg", ImageAlt: "Park"},
		{Name: "mission", Content: map[string]string{"body": "<script>x</script>Grow"}},
	}))

	for _, want := range []string{
		`<title>Friends of the Park</title>`,
		`class="section section--layout-2"`,
		`<strong>Welcome</strong>`,
		`src="/public/uploads/a.jpg" alt="Park"`,
		`"@type":"NGO"`,
		`Grow`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("home page missing %q", want)
		}
	}
	if strings.Contains(out, "<script>x") {
		t.Error("unsanitised content rendered")
	}
	if strings.Contains(out, "contenteditable") {
		t.Error("public page must not be editable")
	}
}

func TestAdminEditorMarksPending(t *testing.T) {
	out := render(t, AdminEditor(SiteConfig{Name: "Site"}, []Section{
		{Name: "hero", Content: map[string]string{"title": "Hi"}, Pending: true},
	}, []string{"hero"}, []string{"default", "layout-2"}, "tok"))

	for _, want := range []string{
		`data-section="hero" data-pending="true"`,
		`data-content-key="title"`,
		`1 section has unpublished changes`,
		`content="tok"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("editor page missing %q", want)
		}
	}
}

func TestAdminEditorNothingPending(t *testing.T) {
	out := render(t, AdminEditor(SiteConfig{Name: "Site"}, nil, nil, nil, "tok"))
	if !strings.Contains(out, `data-action="publish-all" disabled`) {
		t.Error("publish button should be disabled")
	}
	if !strings.Contains(out, "Everything is published") {
		t.Error("missing empty pending label")
	}
}

func TestAdminEditorLayoutPicker(t *testing.T) {
	out := render(t, AdminEditor(SiteConfig{Name: "Site"}, []Section{
		{Name: "hero", Layout: "layout-2"},
		{Name: "mission"},
	}, nil, []string{"default", "layout-2"}, "tok"))

	for _, want := range []string{
		`<select data-layout-for="hero"><option value="default">default</option><option value="layout-2" selected>layout-2</option></select>`,
		`<select data-layout-for="mission"><option value="default">default</option><option value="layout-2">layout-2</option></select>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("editor page missing %q", want)
		}
	}
}

func TestPendingLabel(t *testing.T) {
	tests := map[int]string{
		0: "Everything is published",
		1: "1 section has unpublished changes",
		3: "3 sections have unpublished changes",
	}
	for n, want := range tests {
		if got := pendingLabel(n); got != want {
			t.Errorf("pendingLabel(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestAdminLoginEscapesToken(t *testing.T) {
	out := render(t, AdminLogin(SiteConfig{Name: "Site"}, true, `"><x`))
	if strings.Contains(out, `"><x`) {
		t.Error("csrf token not escaped")
	}
	if !strings.Contains(out, "Wrong password.") {
		t.Error("missing error message")
	}
}

func TestBuildURL(t *testing.T) {
	if got := buildURL("https://park.example"); got != "https://park.example" {
		t.Errorf("buildURL = %q", got)
	}
	if got := buildURL("https://park.example", "admin"); got != "https://park.example/admin/" {
		t.Errorf("buildURL = %q", got)
	}
}
