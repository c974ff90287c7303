package editor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eringen/stagehand/store"
)

// LibrarySection is the pseudo-section uploads land in when no page section
// is given. It is exempt from the one-active-image rule and never listed as
// an active section.
const LibrarySection = "library"

// ObjectStore persists uploaded files and reports their public URL.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
	URL(path string) string
}

// ImageAsset is one row of the image table. The URL, not the ID, identifies
// the underlying image: the same URL may be attached to several sections.
type ImageAsset struct {
	ID                    string    `json:"id"`
	Section               string    `json:"section"`
	URL                   string    `json:"url"`
	AltText               string    `json:"alt_text"`
	OrderIndex            int       `json:"order_index"`
	IsActive              bool      `json:"is_active"`
	PublishedIsActive     bool      `json:"published_is_active"`
	HasUnpublishedChanges bool      `json:"has_unpublished_changes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// LibraryImage is one entry of the deduplicated library view.
type LibraryImage struct {
	ImageAsset
	ActiveSections []string `json:"active_sections"`
}

var imageColumns = []string{
	"id", "section", "url", "alt_text", "order_index", "is_active",
	"published_is_active", "has_unpublished_changes", "created_at", "updated_at",
}

func scanImage(s store.Scanner) (ImageAsset, error) {
	var img ImageAsset
	err := s.Scan(&img.ID, &img.Section, &img.URL, &img.AltText, &img.OrderIndex, &img.IsActive,
		&img.PublishedIsActive, &img.HasUnpublishedChanges, &img.CreatedAt, &img.UpdatedAt)
	return img, err
}

// ImageRepo reads and writes the image table.
type ImageRepo struct {
	base
	objects ObjectStore
}

// NewImageRepo creates an ImageRepo. objects is only needed by Upload.
func NewImageRepo(db store.Querier, objects ObjectStore, opts ...Option) *ImageRepo {
	return &ImageRepo{base: newBase(db, opts), objects: objects}
}

func (r *ImageRepo) list(ctx context.Context, q store.Query) ([]ImageAsset, error) {
	q.Columns = imageColumns
	var out []ImageAsset
	err := r.db.Select(ctx, store.Images, q, func(s store.Scanner) error {
		img, err := scanImage(s)
		if err != nil {
			return err
		}
		out = append(out, img)
		return nil
	})
	if err != nil {
		if store.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Library returns one entry per distinct URL, newest first. Each entry is
// represented by an active row when there is one (newest otherwise) and
// lists every section where a row with that URL is active.
func (r *ImageRepo) Library(ctx context.Context) ([]LibraryImage, error) {
	rows, err := r.list(ctx, store.Query{OrderBy: []store.Order{store.Desc("created_at"), store.Desc("id")}})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	groups := make(map[string][]ImageAsset)
	var order []string
	for _, img := range rows {
		if _, ok := groups[img.URL]; !ok {
			order = append(order, img.URL)
		}
		groups[img.URL] = append(groups[img.URL], img)
	}

	out := make([]LibraryImage, 0, len(order))
	for _, url := range order {
		group := groups[url]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].IsActive != group[j].IsActive {
				return group[i].IsActive
			}
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})
		seen := make(map[string]bool)
		sections := []string{}
		for _, img := range group {
			if img.IsActive && img.Section != LibrarySection && !seen[img.Section] {
				seen[img.Section] = true
				sections = append(sections, img.Section)
			}
		}
		sort.Strings(sections)
		out = append(out, LibraryImage{ImageAsset: group[0], ActiveSections: sections})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Upload describes a file to add to the library.
type Upload struct {
	Filename string
	Data     []byte
	Section  string
	AltText  string
}

// Upload stores the file and records it as an active, unpublished image.
// Uploads to a page section also become that section's only active image.
func (r *ImageRepo) Upload(ctx context.Context, u Upload) (ImageAsset, error) {
	if r.objects == nil {
		return ImageAsset{}, errors.New("editor: no object store configured")
	}
	section := strings.TrimSpace(u.Section)
	if section == "" {
		section = LibrarySection
	}
	name := path.Base(strings.TrimSpace(u.Filename))
	if name == "" || name == "." || name == "/" {
		return ImageAsset{}, errors.New("editor: upload needs a filename")
	}
	objectPath := path.Join("uploads", uuid.NewString()[:8]+"-"+name)
	url, err := r.objects.Put(ctx, objectPath, u.Data)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("store upload %s: %w", name, err)
	}

	if section != LibrarySection {
		img, err := r.SelectForSection(ctx, section, url)
		if err != nil {
			return ImageAsset{}, err
		}
		if u.AltText != "" {
			if _, err := r.db.Update(ctx, store.Images, []store.Filter{store.Eq("id", img.ID)}, store.Values{"alt_text": u.AltText}); err != nil {
				return ImageAsset{}, fmt.Errorf("set alt text: %w", err)
			}
			img.AltText = u.AltText
		}
		return img, nil
	}
	return r.insertActive(ctx, section, url, u.AltText)
}

func (r *ImageRepo) insertActive(ctx context.Context, section, url, alt string) (ImageAsset, error) {
	now := r.timestamp()
	img := ImageAsset{
		ID:                    uuid.NewString(),
		Section:               section,
		URL:                   url,
		AltText:               alt,
		IsActive:              true,
		PublishedIsActive:     false,
		HasUnpublishedChanges: true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	err := r.db.Insert(ctx, store.Images, store.Values{
		"id":                      img.ID,
		"section":                 img.Section,
		"url":                     img.URL,
		"alt_text":                img.AltText,
		"order_index":             img.OrderIndex,
		"is_active":               img.IsActive,
		"published_is_active":     img.PublishedIsActive,
		"has_unpublished_changes": img.HasUnpublishedChanges,
		"created_at":              img.CreatedAt,
		"updated_at":              img.UpdatedAt,
	})
	return img, err
}

// SelectForSection makes url the only active staging image of section,
// reusing an existing (section, url) row when there is one. Duplicate rows
// for the pair are pruned first, keeping the earliest.
func (r *ImageRepo) SelectForSection(ctx context.Context, section, url string) (ImageAsset, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return ImageAsset{}, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return ImageAsset{}, errors.New("editor: image url is required")
	}

	target, found, err := r.findPair(ctx, section, url)
	if err != nil {
		return ImageAsset{}, err
	}

	if found {
		if err := r.deactivateOthers(ctx, section, target.ID); err != nil {
			return ImageAsset{}, err
		}
		return r.reactivate(ctx, target)
	}

	if err := r.deactivateOthers(ctx, section, ""); err != nil {
		return ImageAsset{}, err
	}
	img, err := r.insertActive(ctx, section, url, "")
	if err == nil {
		return img, nil
	}
	if !store.IsConflict(err) {
		return ImageAsset{}, fmt.Errorf("attach %s to %q: %w", url, section, err)
	}

	// Another writer attached the same URL first; use its row.
	r.log.Info("image insert raced, reactivating existing row",
		zap.String("section", section), zap.String("url", url))
	target, found, err = r.findPair(ctx, section, url)
	if err != nil {
		return ImageAsset{}, err
	}
	if !found {
		return ImageAsset{}, fmt.Errorf("attach %s to %q: row vanished after conflict", url, section)
	}
	if err := r.deactivateOthers(ctx, section, target.ID); err != nil {
		return ImageAsset{}, err
	}
	return r.reactivate(ctx, target)
}

// findPair returns the earliest row for (section, url), deleting any later
// duplicates of it.
func (r *ImageRepo) findPair(ctx context.Context, section, url string) (ImageAsset, bool, error) {
	rows, err := r.list(ctx, store.Query{
		Where:   []store.Filter{store.Eq("section", section), store.Eq("url", url)},
		OrderBy: []store.Order{store.Asc("created_at"), store.Asc("id")},
	})
	if err != nil {
		return ImageAsset{}, false, fmt.Errorf("find image %s in %q: %w", url, section, err)
	}
	if len(rows) == 0 {
		return ImageAsset{}, false, nil
	}
	if len(rows) > 1 {
		ids := make([]string, 0, len(rows)-1)
		for _, dup := range rows[1:] {
			ids = append(ids, dup.ID)
		}
		if _, err := r.db.Delete(ctx, store.Images, []store.Filter{store.In("id", ids...)}); err != nil {
			return ImageAsset{}, false, fmt.Errorf("prune duplicates of %s in %q: %w", url, section, err)
		}
		r.log.Info("pruned duplicate image rows",
			zap.String("section", section), zap.String("url", url), zap.Int("count", len(ids)))
	}
	return rows[0], true, nil
}

// deactivateOthers clears is_active on every active row of section except
// keepID, recomputing each row's flag against its published state.
func (r *ImageRepo) deactivateOthers(ctx context.Context, section, keepID string) error {
	where := []store.Filter{store.Eq("section", section), store.Eq("is_active", true)}
	if keepID != "" {
		where = append(where, store.Neq("id", keepID))
	}
	active, err := r.list(ctx, store.Query{Where: where})
	if err != nil {
		return fmt.Errorf("list active images of %q: %w", section, err)
	}
	now := r.timestamp()
	for _, img := range active {
		if _, err := r.db.Update(ctx, store.Images, []store.Filter{store.Eq("id", img.ID)}, store.Values{
			"is_active":               false,
			"has_unpublished_changes": img.PublishedIsActive,
			"updated_at":              now,
		}); err != nil {
			return fmt.Errorf("deactivate image %s: %w", img.ID, err)
		}
	}
	return nil
}

func (r *ImageRepo) reactivate(ctx context.Context, img ImageAsset) (ImageAsset, error) {
	now := r.timestamp()
	flag := !img.PublishedIsActive
	if _, err := r.db.Update(ctx, store.Images, []store.Filter{store.Eq("id", img.ID)}, store.Values{
		"is_active":               true,
		"has_unpublished_changes": flag,
		"updated_at":              now,
	}); err != nil {
		return ImageAsset{}, fmt.Errorf("activate image %s: %w", img.ID, err)
	}
	img.IsActive = true
	img.HasUnpublishedChanges = flag
	img.UpdatedAt = now
	return img, nil
}

// Get returns the row with id.
func (r *ImageRepo) Get(ctx context.Context, id string) (ImageAsset, error) {
	rows, err := r.list(ctx, store.Query{Where: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return ImageAsset{}, fmt.Errorf("load image %s: %w", id, err)
	}
	if len(rows) == 0 {
		return ImageAsset{}, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	return rows[0], nil
}

// Deleted reports what Delete removed.
type Deleted struct {
	URL  string `json:"url"`
	Rows int64  `json:"rows"`
}

// Delete removes the image with id and every other row sharing its URL, in
// any section: the library treats same-URL rows as one image.
func (r *ImageRepo) Delete(ctx context.Context, id string) (Deleted, error) {
	img, err := r.Get(ctx, id)
	if err != nil {
		return Deleted{}, err
	}
	n, err := r.db.Delete(ctx, store.Images, []store.Filter{store.Eq("url", img.URL)})
	if err != nil {
		return Deleted{}, fmt.Errorf("delete image %s: %w", img.URL, err)
	}
	return Deleted{URL: img.URL, Rows: n}, nil
}

// CleanupDuplicates deletes every row that repeats an earlier (section, url)
// pair, keeping the earliest-created, and reports how many were removed.
func (r *ImageRepo) CleanupDuplicates(ctx context.Context) (int, error) {
	rows, err := r.list(ctx, store.Query{OrderBy: []store.Order{store.Asc("created_at"), store.Asc("id")}})
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	type pair struct{ section, url string }
	seen := make(map[pair]bool, len(rows))
	var doomed []string
	for _, img := range rows {
		k := pair{img.Section, img.URL}
		if seen[k] {
			doomed = append(doomed, img.ID)
			continue
		}
		seen[k] = true
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if _, err := r.db.Delete(ctx, store.Images, []store.Filter{store.In("id", doomed...)}); err != nil {
		return 0, fmt.Errorf("delete duplicate images: %w", err)
	}
	r.log.Info("removed duplicate image rows", zap.Int("count", len(doomed)))
	return len(doomed), nil
}

// Active returns the image shown for section in mode, if any.
func (r *ImageRepo) Active(ctx context.Context, section string, mode Mode) (ImageAsset, bool, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return ImageAsset{}, false, err
	}
	column := "is_active"
	if mode == Published {
		column = "published_is_active"
	}
	rows, err := r.list(ctx, store.Query{
		Where:   []store.Filter{store.Eq("section", section), store.Eq(column, true)},
		OrderBy: []store.Order{store.Desc("updated_at")},
		Limit:   1,
	})
	if err != nil {
		return ImageAsset{}, false, fmt.Errorf("load active image of %q: %w", section, err)
	}
	if len(rows) == 0 {
		return ImageAsset{}, false, nil
	}
	return rows[0], true, nil
}

// Section returns every row attached to section, newest first.
func (r *ImageRepo) Section(ctx context.Context, section string) ([]ImageAsset, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return nil, err
	}
	rows, err := r.list(ctx, store.Query{
		Where:   []store.Filter{store.Eq("section", section)},
		OrderBy: []store.Order{store.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("list images of %q: %w", section, err)
	}
	return rows, nil
}

// Pending returns every row with unpublished changes.
func (r *ImageRepo) Pending(ctx context.Context) ([]ImageAsset, error) {
	rows, err := r.list(ctx, store.Query{
		Where:   []store.Filter{store.Eq("has_unpublished_changes", true)},
		OrderBy: []store.Order{store.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	return rows, nil
}

func (r *ImageRepo) publish(ctx context.Context, img ImageAsset) error {
	_, err := r.db.Update(ctx, store.Images, []store.Filter{store.Eq("id", img.ID)}, store.Values{
		"published_is_active":     img.IsActive,
		"has_unpublished_changes": false,
		"updated_at":              r.timestamp(),
	})
	return err
}

// Unpublished returns the sections with at least one pending image row.
// Library rows belong to no page section and are left out, as in Library;
// PublishAll still publishes them.
func (r *ImageRepo) Unpublished(ctx context.Context) ([]string, error) {
	rows, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	sections := make([]string, 0, len(rows))
	for _, img := range rows {
		if img.Section == LibrarySection {
			continue
		}
		sections = append(sections, img.Section)
	}
	return sections, nil
}
