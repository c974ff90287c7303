package views

import (
	"encoding/json"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
)

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// SectionClass returns the CSS classes for a section in the given layout.
func SectionClass(layout string) string {
	if layout == "" {
		layout = "default"
	}
	return "section section--" + layout
}

// sortedKeys returns the keys of m in lexical order so fields render stably.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OrganizationJsonLD produces a Schema.org NGO JSON-LD block using cfg values.
func OrganizationJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "NGO",
		"name":     cfg.Name,
		"url":      buildURL(cfg.URL),
	}
	if cfg.Description != "" {
		data["description"] = cfg.Description
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func pageTitle(meta PageMeta, site SiteConfig) string {
	if meta.Title == "" {
		return site.Name
	}
	return meta.Title
}

// pendingLabel is the publish bar summary for n sections with unpublished changes.
func pendingLabel(n int) string {
	switch n {
	case 0:
		return "Everything is published"
	case 1:
		return "1 section has unpublished changes"
	}
	return strconv.Itoa(n) + " sections have unpublished changes"
}
