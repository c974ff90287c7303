package editor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/eringen/stagehand/store"
)

// tickClock returns a clock that advances one second per reading so rows
// written in sequence get strictly increasing timestamps.
func tickClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type memObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memObjects) Put(_ context.Context, path string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = data
	return m.URL(path), nil
}

func (m *memObjects) URL(path string) string { return "/static/" + path }

func setupTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "editor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupEditor(t *testing.T) (*Editor, *store.DB) {
	t.Helper()
	db := setupTestStore(t)
	return New(db, &memObjects{}, WithClock(tickClock())), db
}

// faultyQuerier fails updates matching a predicate, lets beforeInsert
// replace an insert with an error, and passes everything else through.
type faultyQuerier struct {
	store.Querier
	failUpdate   func(table store.Table, where []store.Filter) bool
	beforeInsert func(ctx context.Context, table store.Table, values store.Values) error
}

func (q faultyQuerier) Insert(ctx context.Context, table store.Table, values store.Values) error {
	if q.beforeInsert != nil {
		if err := q.beforeInsert(ctx, table, values); err != nil {
			return err
		}
	}
	return q.Querier.Insert(ctx, table, values)
}

func (q faultyQuerier) Update(ctx context.Context, table store.Table, where []store.Filter, patch store.Values) (int64, error) {
	if q.failUpdate != nil && q.failUpdate(table, where) {
		return 0, fmt.Errorf("injected failure on %s", table)
	}
	return q.Querier.Update(ctx, table, where, patch)
}

func filterValue(where []store.Filter, column string) any {
	for _, f := range where {
		if f.Column == column {
			return f.Value
		}
	}
	return nil
}

// requireFlagsConsistent checks every row of every table: the unpublished
// flag must equal staging != published.
func requireFlagsConsistent(t *testing.T, ed *Editor) {
	t.Helper()
	ctx := context.Background()

	layouts, err := ed.Layouts.list(ctx)
	require.NoError(t, err)
	for _, l := range layouts {
		require.Equal(t, l.Staging != l.Published, l.HasUnpublishedChanges, "layout %s", l.Section)
	}

	items, err := ed.Content.list(ctx)
	require.NoError(t, err)
	for _, c := range items {
		differs := (c.Staging == nil) != (c.Published == nil) ||
			(c.Staging != nil && c.Published != nil && *c.Staging != *c.Published)
		require.Equal(t, differs, c.HasUnpublishedChanges, "content %s/%s", c.Section, c.Key)
	}

	images, err := ed.Images.list(ctx, store.Query{})
	require.NoError(t, err)
	for _, img := range images {
		require.Equal(t, img.IsActive != img.PublishedIsActive, img.HasUnpublishedChanges, "image %s", img.ID)
	}
}

func TestParseMode(t *testing.T) {
	require.Equal(t, Published, ParseMode("published"))
	require.Equal(t, Published, ParseMode(" Published "))
	require.Equal(t, Staging, ParseMode(""))
	require.Equal(t, Staging, ParseMode("draft"))
}

func TestFlagCorrectnessAcrossEdits(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := ed.Layouts.Set(ctx, "hero", LayoutTwo); return err },
		func() error { _, err := ed.Layouts.Set(ctx, "hero", LayoutThree); return err },
		func() error { _, err := ed.Content.Set(ctx, "hero", "title", "Hello"); return err },
		func() error { _, err := ed.Content.Set(ctx, "hero", "title", "Hello there"); return err },
		func() error { _, err := ed.Images.SelectForSection(ctx, "hero", "/a.jpg"); return err },
		func() error { _, err := ed.Publisher.PublishAll(ctx, []string{"hero"}); return err },
		func() error { _, err := ed.Images.SelectForSection(ctx, "hero", "/b.jpg"); return err },
		func() error { _, err := ed.Content.Set(ctx, "hero", "title", "Hello"); return err },
		func() error { _, err := ed.Layouts.Set(ctx, "hero", LayoutThree); return err },
		func() error { _, err := ed.Images.SelectForSection(ctx, "hero", "/a.jpg"); return err },
		func() error { _, err := ed.Content.Set(ctx, "hero", "title", "Hello there"); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		requireFlagsConsistent(t, ed)
	}

	// Reverting everything to the published state clears every flag.
	set, err := ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	require.Empty(t, set.Sorted())
}

func TestPublishAllIdempotent(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	_, err := ed.Layouts.Set(ctx, "hero", LayoutDefault)
	require.NoError(t, err)
	_, err = ed.Layouts.Set(ctx, "hero", LayoutTwo)
	require.NoError(t, err)
	_, err = ed.Content.Set(ctx, "mission", "body", "v1")
	require.NoError(t, err)
	_, err = ed.Content.Set(ctx, "mission", "body", "v2")
	require.NoError(t, err)
	_, err = ed.Images.SelectForSection(ctx, "about", "/team.jpg")
	require.NoError(t, err)

	pending, err := ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"about", "hero", "mission"}, pending.Sorted())

	first, err := ed.Publisher.PublishAll(ctx, pending.Sorted())
	require.NoError(t, err)
	require.False(t, first.Partial())
	require.Equal(t, 1, first.Layouts)
	require.Equal(t, 1, first.Images)
	require.Equal(t, 1, first.Content)
	require.Empty(t, first.Remaining)

	snapshot := func() ([]SectionLayout, []ContentItem, []ImageAsset) {
		l, err := ed.Layouts.list(ctx)
		require.NoError(t, err)
		c, err := ed.Content.list(ctx)
		require.NoError(t, err)
		i, err := ed.Images.list(ctx, store.Query{OrderBy: []store.Order{store.Asc("id")}})
		require.NoError(t, err)
		return l, c, i
	}
	l1, c1, i1 := snapshot()

	second, err := ed.Publisher.PublishAll(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, second.Remaining)
	require.Zero(t, second.Images+second.Content+second.Layouts)

	l2, c2, i2 := snapshot()
	require.Empty(t, cmp.Diff(l1, l2))
	require.Empty(t, cmp.Diff(c1, c2))
	require.Empty(t, cmp.Diff(i1, i2))

	hero, err := ed.Layouts.Get(ctx, "hero")
	require.NoError(t, err)
	require.Equal(t, LayoutTwo, hero.Published)

	body, err := ed.Content.Section(ctx, "mission", Published)
	require.NoError(t, err)
	require.Equal(t, "v2", body["body"])
}

func TestPublishAllOnlyPublishesPendingLayouts(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	for _, s := range []string{"hero", "mission"} {
		_, err := ed.Layouts.Set(ctx, s, LayoutDefault)
		require.NoError(t, err)
		_, err = ed.Layouts.Set(ctx, s, LayoutThree)
		require.NoError(t, err)
	}

	report, err := ed.Publisher.PublishAll(ctx, []string{"hero"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Layouts)
	require.Equal(t, []string{"mission"}, report.Remaining)
}

func TestPublishAllReportsRowFailures(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	seed := New(db, nil, WithClock(tickClock()))
	for _, key := range []string{"title", "subtitle"} {
		_, err := seed.Content.Set(ctx, "hero", key, "old")
		require.NoError(t, err)
		_, err = seed.Content.Set(ctx, "hero", key, "new")
		require.NoError(t, err)
	}

	faulty := faultyQuerier{Querier: db, failUpdate: func(table store.Table, where []store.Filter) bool {
		return table == store.Content && filterValue(where, "content_key") == "subtitle"
	}}
	ed := New(faulty, nil, WithClock(tickClock()))

	report, err := ed.Publisher.PublishAll(ctx, []string{"hero"})
	require.NoError(t, err)
	require.True(t, report.Partial())
	require.Len(t, report.Failures, 1)
	require.Equal(t, store.Content, report.Failures[0].Table)
	require.Equal(t, "hero/subtitle", report.Failures[0].Key)
	require.Equal(t, 1, report.Content)
	require.Equal(t, []string{"hero"}, report.Remaining)

	values, err := ed.Content.Section(ctx, "hero", Published)
	require.NoError(t, err)
	require.Equal(t, "new", values["title"])
	require.Equal(t, "old", values["subtitle"])
}

func TestEditorSurvivesUnprovisionedContent(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "DROP TABLE section_content"))

	values, err := ed.Content.Section(ctx, "hero", Published)
	require.NoError(t, err)
	require.Empty(t, values)

	_, err = ed.Layouts.Set(ctx, "hero", LayoutDefault)
	require.NoError(t, err)
	_, err = ed.Layouts.Set(ctx, "hero", LayoutTwo)
	require.NoError(t, err)

	set, err := ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"hero"}, set.Sorted())

	report, err := ed.Publisher.PublishAll(ctx, set.Sorted())
	require.NoError(t, err)
	require.Empty(t, report.Remaining)
}

func TestSectionSet(t *testing.T) {
	s := NewSectionSet("b", "", "a", "b")
	require.True(t, s.Has("a"))
	require.False(t, s.Has(""))
	require.Equal(t, []string{"a", "b"}, s.Sorted())
	require.NotNil(t, NewSectionSet().Sorted())
}
