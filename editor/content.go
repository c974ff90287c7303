package editor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eringen/stagehand/store"
)

// ContentItem is one text field of a section. Items are versioned
// individually, not as a whole section.
type ContentItem struct {
	Section               string     `json:"section"`
	Key                   string     `json:"content_key"`
	Staging               *string    `json:"staging_value"`
	Published             *string    `json:"published_value"`
	HasUnpublishedChanges bool       `json:"has_unpublished_changes"`
	UpdatedAt             time.Time  `json:"updated_at"`
	PublishedAt           *time.Time `json:"published_at,omitempty"`
}

// Value returns the value shown in mode. Published mode falls back to the
// staged value when the published value is NULL or empty, then to "".
func (c ContentItem) Value(mode Mode) string {
	if mode == Published && c.Published != nil && *c.Published != "" {
		return *c.Published
	}
	if c.Staging != nil {
		return *c.Staging
	}
	return ""
}

var contentColumns = []string{
	"section", "content_key", "staging_value", "published_value",
	"has_unpublished_changes", "updated_at", "published_at",
}

func scanContent(s store.Scanner) (ContentItem, error) {
	var (
		c                  ContentItem
		staging, published sql.NullString
		publishedAt        sql.NullTime
	)
	if err := s.Scan(&c.Section, &c.Key, &staging, &published, &c.HasUnpublishedChanges, &c.UpdatedAt, &publishedAt); err != nil {
		return ContentItem{}, err
	}
	if staging.Valid {
		c.Staging = &staging.String
	}
	if published.Valid {
		c.Published = &published.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		c.PublishedAt = &t
	}
	return c, nil
}

// ContentRepo reads and writes section_content. The table is optional: when
// it has not been provisioned reads return nothing instead of failing.
type ContentRepo struct {
	base
	notifier *Notifier
}

// NewContentRepo creates a ContentRepo. notifier may be nil.
func NewContentRepo(db store.Querier, notifier *Notifier, opts ...Option) *ContentRepo {
	return &ContentRepo{base: newBase(db, opts), notifier: notifier}
}

func (r *ContentRepo) list(ctx context.Context, where ...store.Filter) ([]ContentItem, error) {
	var out []ContentItem
	err := r.db.Select(ctx, store.Content, store.Query{
		Columns: contentColumns,
		Where:   where,
		OrderBy: []store.Order{store.Asc("section"), store.Asc("content_key")},
	}, func(s store.Scanner) error {
		c, err := scanContent(s)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		if store.IsUnprovisioned(err) || store.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Items returns every stored field of section.
func (r *ContentRepo) Items(ctx context.Context, section string) ([]ContentItem, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return nil, err
	}
	items, err := r.list(ctx, store.Eq("section", section))
	if err != nil {
		return nil, fmt.Errorf("load content %q: %w", section, err)
	}
	return items, nil
}

// Section returns the fields of section keyed by content key, as seen in mode.
func (r *ContentRepo) Section(ctx context.Context, section string, mode Mode) (map[string]string, error) {
	items, err := r.Items(ctx, section)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(items))
	for _, c := range items {
		values[c.Key] = c.Value(mode)
	}
	return values, nil
}

// Set stages value for (section, key). A field's first value is stored as
// both staging and published. Later values update staging and flag the item
// when they differ from the published value stored at the time of the write.
//
// The comparison is not made against a snapshot shared with publishing, so
// an edit racing a publish from another tab can leave a stale flag.
func (r *ContentRepo) Set(ctx context.Context, section, key, value string) (ContentItem, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return ContentItem{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ContentItem{}, ErrInvalidKey
	}
	where := []store.Filter{store.Eq("section", section), store.Eq("content_key", key)}

	existing, err := r.list(ctx, where...)
	if err != nil {
		return ContentItem{}, fmt.Errorf("load content %s/%s: %w", section, key, err)
	}
	now := r.timestamp()

	var item ContentItem
	if len(existing) == 0 {
		err := r.db.Insert(ctx, store.Content, store.Values{
			"section":                 section,
			"content_key":             key,
			"staging_value":           value,
			"published_value":         value,
			"has_unpublished_changes": false,
			"updated_at":              now,
		})
		if err != nil && !store.IsConflict(err) {
			return ContentItem{}, fmt.Errorf("create content %s/%s: %w", section, key, err)
		}
		if err == nil {
			v := value
			item = ContentItem{Section: section, Key: key, Staging: &v, Published: &v, UpdatedAt: now}
			r.notify(item)
			return item, nil
		}
		r.log.Info("content insert raced, updating instead",
			zap.String("section", section), zap.String("content_key", key))
		existing, err = r.list(ctx, where...)
		if err != nil {
			return ContentItem{}, fmt.Errorf("reload content %s/%s: %w", section, key, err)
		}
		if len(existing) == 0 {
			return ContentItem{}, fmt.Errorf("content %s/%s vanished after conflict", section, key)
		}
	}

	item = existing[0]
	flag := item.Published == nil || *item.Published != value
	if _, err := r.db.Update(ctx, store.Content, where, store.Values{
		"staging_value":           value,
		"has_unpublished_changes": flag,
		"updated_at":              now,
	}); err != nil {
		return ContentItem{}, fmt.Errorf("update content %s/%s: %w", section, key, err)
	}
	v := value
	item.Staging = &v
	item.HasUnpublishedChanges = flag
	item.UpdatedAt = now
	r.notify(item)
	return item, nil
}

func (r *ContentRepo) notify(c ContentItem) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(ContentChanged{Section: c.Section, Key: c.Key, Value: c.Value(Staging)})
}

// PublishSection publishes every field of section. A failing field is
// logged and reported; the remaining fields are still published.
func (r *ContentRepo) PublishSection(ctx context.Context, section string) (PublishReport, error) {
	items, err := r.Items(ctx, section)
	if err != nil {
		return PublishReport{}, err
	}
	var report PublishReport
	for _, c := range items {
		if err := r.publish(ctx, c); err != nil {
			report.fail(r.log, store.Content, c.Section+"/"+c.Key, err)
			continue
		}
		report.Content++
	}
	return report, nil
}

// publish copies the staged value of c over its published value.
func (r *ContentRepo) publish(ctx context.Context, c ContentItem) error {
	patch := store.Values{
		"has_unpublished_changes": false,
		"published_at":            r.timestamp(),
	}
	if c.Staging != nil {
		patch["published_value"] = *c.Staging
	} else {
		patch["published_value"] = nil
	}
	_, err := r.db.Update(ctx, store.Content, []store.Filter{
		store.Eq("section", c.Section),
		store.Eq("content_key", c.Key),
	}, patch)
	return err
}

// Pending returns every item with unpublished changes, across all sections.
func (r *ContentRepo) Pending(ctx context.Context) ([]ContentItem, error) {
	items, err := r.list(ctx, store.Eq("has_unpublished_changes", true))
	if err != nil {
		return nil, fmt.Errorf("list pending content: %w", err)
	}
	return items, nil
}

// Unpublished returns the sections with at least one pending field.
func (r *ContentRepo) Unpublished(ctx context.Context) ([]string, error) {
	items, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	sections := make([]string, 0, len(items))
	for _, c := range items {
		sections = append(sections, c.Section)
	}
	return sections, nil
}
