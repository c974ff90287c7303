package editor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/stagehand/store"
)

func TestContentValueFallback(t *testing.T) {
	staged := "draft"
	empty := ""
	tests := []struct {
		name string
		item ContentItem
		mode Mode
		want string
	}{
		{"published wins", ContentItem{Staging: &staged, Published: strPtr("live")}, Published, "live"},
		{"null published falls back to staging", ContentItem{Staging: &staged}, Published, "draft"},
		{"empty published falls back to staging", ContentItem{Staging: &staged, Published: &empty}, Published, "draft"},
		{"both empty", ContentItem{Staging: &empty, Published: &empty}, Published, ""},
		{"nothing at all", ContentItem{}, Published, ""},
		{"staging mode ignores published", ContentItem{Staging: &staged, Published: strPtr("live")}, Staging, "draft"},
		{"staging mode null", ContentItem{Published: strPtr("live")}, Staging, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.Value(tt.mode))
		})
	}
}

func strPtr(s string) *string { return &s }

func TestSectionContentPublishedFallsBackToStaging(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()

	// A row written outside the repository with no published value.
	require.NoError(t, db.Insert(ctx, store.Content, store.Values{
		"section":                 "hero",
		"content_key":             "title",
		"staging_value":           "Welcome",
		"has_unpublished_changes": true,
		"updated_at":              time.Now().UTC(),
	}))
	require.NoError(t, db.Insert(ctx, store.Content, store.Values{
		"section":                 "hero",
		"content_key":             "tagline",
		"has_unpublished_changes": false,
		"updated_at":              time.Now().UTC(),
	}))

	require.NoError(t, db.Insert(ctx, store.Content, store.Values{
		"section":                 "hero",
		"content_key":             "subtitle",
		"staging_value":           "draft",
		"published_value":         "",
		"has_unpublished_changes": true,
		"updated_at":              time.Now().UTC(),
	}))

	values, err := ed.Content.Section(ctx, "hero", Published)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "Welcome", "tagline": "", "subtitle": "draft"}, values)
}

func TestSetContentLifecycle(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	first, err := ed.Content.Set(ctx, "hero", "title", "Hello")
	require.NoError(t, err)
	assert.False(t, first.HasUnpublishedChanges)
	assert.Equal(t, "Hello", first.Value(Published))

	edited, err := ed.Content.Set(ctx, "hero", "title", "Hello, world")
	require.NoError(t, err)
	assert.True(t, edited.HasUnpublishedChanges)

	live, err := ed.Content.Section(ctx, "hero", Published)
	require.NoError(t, err)
	assert.Equal(t, "Hello", live["title"])

	draft, err := ed.Content.Section(ctx, "hero", Staging)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", draft["title"])

	report, err := ed.Content.PublishSection(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Content)
	assert.False(t, report.Partial())

	live, err = ed.Content.Section(ctx, "hero", Published)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", live["title"])

	pending, err := ed.Content.Unpublished(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSetContentNotifies(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	events, cancel := ed.Notifier.Subscribe("hero")
	defer cancel()

	_, err := ed.Content.Set(ctx, "hero", "title", "Hi")
	require.NoError(t, err)
	_, err = ed.Content.Set(ctx, "mission", "body", "ignored")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, ContentChanged{Section: "hero", Key: "title", Value: "Hi"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestSetContentValidation(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	_, err := ed.Content.Set(ctx, "", "title", "x")
	require.ErrorIs(t, err, ErrInvalidSection)
	_, err = ed.Content.Set(ctx, "hero", " ", "x")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSetContentWithoutTableFails(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "DROP TABLE section_content"))

	_, err := ed.Content.Set(ctx, "hero", "title", "x")
	require.Error(t, err)
	assert.True(t, store.IsUnprovisioned(err))
}
