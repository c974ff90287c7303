package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/stagehand/store"
)

func insertImage(t *testing.T, db store.Querier, id, section, url string, active bool, created time.Time) {
	t.Helper()
	require.NoError(t, db.Insert(context.Background(), store.Images, store.Values{
		"id":                      id,
		"section":                 section,
		"url":                     url,
		"alt_text":                "",
		"order_index":             0,
		"is_active":               active,
		"published_is_active":     active,
		"has_unpublished_changes": false,
		"created_at":              created,
		"updated_at":              created,
	}))
}

func activeIn(t *testing.T, ed *Editor, section string) []ImageAsset {
	t.Helper()
	rows, err := ed.Images.list(context.Background(), store.Query{
		Where: []store.Filter{store.Eq("section", section), store.Eq("is_active", true)},
	})
	require.NoError(t, err)
	return rows
}

func TestSelectForSectionKeepsOneActive(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	for _, url := range []string{"/a.jpg", "/b.jpg", "/a.jpg", "/c.jpg", "/c.jpg", "/b.jpg"} {
		img, err := ed.Images.SelectForSection(ctx, "hero", url)
		require.NoError(t, err)
		assert.Equal(t, url, img.URL)

		active := activeIn(t, ed, "hero")
		require.Len(t, active, 1, "after selecting %s", url)
		assert.Equal(t, url, active[0].URL)
	}

	rows, err := ed.Images.Section(ctx, "hero")
	require.NoError(t, err)
	assert.Len(t, rows, 3, "existing rows are reactivated, not duplicated")
}

func TestSelectForSectionPrunesDuplicates(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insertImage(t, db, "old", "hero", "/a.jpg", false, base)
	insertImage(t, db, "dup1", "hero", "/a.jpg", true, base.Add(time.Minute))
	insertImage(t, db, "dup2", "hero", "/a.jpg", false, base.Add(2*time.Minute))

	img, err := ed.Images.SelectForSection(ctx, "hero", "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "old", img.ID)

	rows, err := ed.Images.Section(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive)
}

// racingQuerier inserts a competing row for the same (section, url) right
// before the first image insert, simulating another tab winning the race.
type racingQuerier struct {
	store.Querier
	once sync.Once
}

func (q *racingQuerier) Insert(ctx context.Context, table store.Table, v store.Values) error {
	if table == store.Images {
		var err error
		q.once.Do(func() {
			racer := store.Values{}
			for k, val := range v {
				racer[k] = val
			}
			racer["id"] = "racer"
			racer["is_active"] = false
			racer["has_unpublished_changes"] = false
			err = q.Querier.Insert(ctx, table, racer)
		})
		if err != nil {
			return err
		}
	}
	return q.Querier.Insert(ctx, table, v)
}

func TestSelectForSectionRecoversFromConflict(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "CREATE UNIQUE INDEX images_section_url ON images(section, url)"))

	ed := New(&racingQuerier{Querier: db}, nil, WithClock(tickClock()))
	img, err := ed.Images.SelectForSection(ctx, "hero", "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "racer", img.ID)
	assert.True(t, img.IsActive)
	assert.True(t, img.HasUnpublishedChanges)

	active := activeIn(t, ed, "hero")
	require.Len(t, active, 1)
	assert.Equal(t, "racer", active[0].ID)
}

func TestDeleteCascadesByURL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		t.Run(id, func(t *testing.T) {
			ed, db := setupEditor(t)
			ctx := context.Background()
			insertImage(t, db, "a", "hero", "/shared.jpg", true, now)
			insertImage(t, db, "b", "mission", "/shared.jpg", true, now.Add(time.Second))
			insertImage(t, db, "c", "mission", "/other.jpg", false, now.Add(2*time.Second))

			deleted, err := ed.Images.Delete(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "/shared.jpg", deleted.URL)
			assert.EqualValues(t, 2, deleted.Rows)

			rows, err := ed.Images.list(ctx, store.Query{})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "c", rows[0].ID)
		})
	}
}

func TestDeleteUnknownImage(t *testing.T) {
	ed, _ := setupEditor(t)

	_, err := ed.Images.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryCollapsesByURL(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insertImage(t, db, "a-active", "A", "/x.jpg", true, now)
	insertImage(t, db, "a-inactive", "A", "/x.jpg", false, now.Add(time.Minute))
	insertImage(t, db, "b-active", "B", "/x.jpg", true, now.Add(2*time.Minute))
	insertImage(t, db, "lib", LibrarySection, "/y.jpg", true, now.Add(3*time.Minute))

	lib, err := ed.Images.Library(ctx)
	require.NoError(t, err)
	require.Len(t, lib, 2)

	assert.Equal(t, "/y.jpg", lib[0].URL, "newest first")
	assert.Empty(t, lib[0].ActiveSections)

	x := lib[1]
	assert.Equal(t, "/x.jpg", x.URL)
	assert.True(t, x.IsActive, "represented by an active row")
	assert.Equal(t, "b-active", x.ID)
	if diff := cmp.Diff([]string{"B", "A"}, x.ActiveSections, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("active sections (-want +got):\n%s", diff)
	}
}

func TestCleanupDuplicatesKeepsEarliest(t *testing.T) {
	ed, db := setupEditor(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insertImage(t, db, "first", "hero", "/a.jpg", false, now)
	insertImage(t, db, "second", "hero", "/a.jpg", true, now.Add(time.Second))
	insertImage(t, db, "third", "hero", "/a.jpg", false, now.Add(2*time.Second))
	insertImage(t, db, "other-section", "mission", "/a.jpg", true, now.Add(3*time.Second))

	n, err := ed.Images.CleanupDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := ed.Images.list(ctx, store.Query{OrderBy: []store.Order{store.Asc("id")}})
	require.NoError(t, err)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"first", "other-section"}, ids)

	n, err = ed.Images.CleanupDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadToLibraryAndSection(t *testing.T) {
	objects := &memObjects{}
	db := setupTestStore(t)
	ed := New(db, objects, WithClock(tickClock()))
	ctx := context.Background()

	lib, err := ed.Images.Upload(ctx, Upload{Filename: "logo.jpg", Data: []byte("jpg")})
	require.NoError(t, err)
	assert.Equal(t, LibrarySection, lib.Section)
	assert.True(t, lib.IsActive)
	assert.False(t, lib.PublishedIsActive)
	assert.True(t, lib.HasUnpublishedChanges)
	assert.Contains(t, lib.URL, "logo.jpg")
	assert.Len(t, objects.files, 1)

	_, err = ed.Images.SelectForSection(ctx, "hero", "/existing.jpg")
	require.NoError(t, err)
	hero, err := ed.Images.Upload(ctx, Upload{Filename: "../hero.jpg", Data: []byte("jpg"), Section: "hero", AltText: "Team"})
	require.NoError(t, err)
	assert.Equal(t, "Team", hero.AltText)
	assert.NotContains(t, hero.URL, "..")

	active := activeIn(t, ed, "hero")
	require.Len(t, active, 1)
	assert.Equal(t, hero.ID, active[0].ID)

	_, err = ed.Images.Upload(ctx, Upload{Filename: "", Data: []byte("x")})
	require.Error(t, err)
}

func TestActiveImageByMode(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	_, ok, err := ed.Images.Active(ctx, "hero", Published)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ed.Images.SelectForSection(ctx, "hero", "/a.jpg")
	require.NoError(t, err)
	_, err = ed.Publisher.PublishAll(ctx, nil)
	require.NoError(t, err)
	_, err = ed.Images.SelectForSection(ctx, "hero", "/b.jpg")
	require.NoError(t, err)

	staged, ok, err := ed.Images.Active(ctx, "hero", Staging)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/b.jpg", staged.URL)

	live, ok, err := ed.Images.Active(ctx, "hero", Published)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/a.jpg", live.URL)
}

func TestLibraryUploadsStayOutOfUnpublishedSet(t *testing.T) {
	ed, _ := setupEditor(t)
	ctx := context.Background()

	lib, err := ed.Images.Upload(ctx, Upload{Filename: "logo.jpg", Data: []byte("jpg")})
	require.NoError(t, err)
	require.True(t, lib.HasUnpublishedChanges)

	pending, err := ed.Aggregator.Unpublished(ctx)
	require.NoError(t, err)
	assert.False(t, pending.Has(LibrarySection))
	assert.Empty(t, pending.Sorted())

	report, err := ed.Publisher.PublishAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)

	got, err := ed.Images.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.True(t, got.PublishedIsActive)
	assert.False(t, got.HasUnpublishedChanges)
}
