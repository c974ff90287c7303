package views

// SiteConfig holds site-wide settings every page needs.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head>.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
}

// Section is one rendered page section: a layout, its text fields and its
// active image, already resolved for either staging or published mode.
type Section struct {
	Name     string
	Layout   string
	Content  map[string]string
	ImageURL string
	ImageAlt string
	// Pending marks sections with unpublished changes in the editor view.
	Pending bool
}

// Text returns the content value for key, or "".
func (s Section) Text(key string) string {
	return s.Content[key]
}
