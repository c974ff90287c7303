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

// Layout is one of the fixed section layouts.
type Layout string

const (
	LayoutDefault Layout = "default"
	LayoutTwo     Layout = "layout-2"
	LayoutThree   Layout = "layout-3"
)

// legacyLayoutOne is the old name of the default layout.
const legacyLayoutOne = "layout-1"

// KnownLayouts lists the canonical layouts in display order.
var KnownLayouts = []Layout{LayoutDefault, LayoutTwo, LayoutThree}

// ParseLayout normalises s to a canonical Layout. The empty string and the
// legacy "layout-1" name both mean LayoutDefault.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(LayoutDefault), legacyLayoutOne:
		return LayoutDefault, nil
	case string(LayoutTwo):
		return LayoutTwo, nil
	case string(LayoutThree):
		return LayoutThree, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLayout, s)
}

// normalizeStored maps a stored value to a Layout, falling back to the
// default for anything unrecognised so a bad row never breaks a page.
func normalizeStored(s string) Layout {
	l, err := ParseLayout(s)
	if err != nil {
		return LayoutDefault
	}
	return l
}

// SectionLayout is the layout state of one section.
type SectionLayout struct {
	Section               string     `json:"section"`
	Staging               Layout     `json:"staging_layout"`
	Published             Layout     `json:"published_layout"`
	HasUnpublishedChanges bool       `json:"has_unpublished_changes"`
	UpdatedAt             time.Time  `json:"updated_at,omitempty"`
	PublishedAt           *time.Time `json:"published_at,omitempty"`

	// ReloadRequired tells the editor surface that the page structure changed
	// and the view must be reloaded rather than patched.
	ReloadRequired bool `json:"reload_required,omitempty"`
}

func defaultLayout(section string) SectionLayout {
	return SectionLayout{Section: section, Staging: LayoutDefault, Published: LayoutDefault}
}

var layoutColumns = []string{
	"section", "layout_type", "published_layout_type",
	"has_unpublished_changes", "updated_at", "published_at",
}

func scanLayout(s store.Scanner) (SectionLayout, error) {
	var (
		l                  SectionLayout
		staging, published string
		publishedAt        sql.NullTime
	)
	if err := s.Scan(&l.Section, &staging, &published, &l.HasUnpublishedChanges, &l.UpdatedAt, &publishedAt); err != nil {
		return SectionLayout{}, err
	}
	l.Staging = normalizeStored(staging)
	l.Published = normalizeStored(published)
	if publishedAt.Valid {
		t := publishedAt.Time
		l.PublishedAt = &t
	}
	return l, nil
}

// LayoutRepo reads and writes section_layouts.
type LayoutRepo struct {
	base
}

// NewLayoutRepo creates a LayoutRepo over db.
func NewLayoutRepo(db store.Querier, opts ...Option) *LayoutRepo {
	return &LayoutRepo{base: newBase(db, opts)}
}

// find returns the stored row for section and whether it exists. A missing
// table counts as a missing row.
func (r *LayoutRepo) find(ctx context.Context, section string) (SectionLayout, bool, error) {
	var (
		found SectionLayout
		ok    bool
	)
	err := r.db.Select(ctx, store.Layouts, store.Query{
		Columns: layoutColumns,
		Where:   []store.Filter{store.Eq("section", section)},
		Limit:   1,
	}, func(s store.Scanner) error {
		l, err := scanLayout(s)
		if err != nil {
			return err
		}
		found, ok = l, true
		return nil
	})
	if err != nil {
		if store.IsUnprovisioned(err) || store.IsNoRows(err) {
			return SectionLayout{}, false, nil
		}
		return SectionLayout{}, false, fmt.Errorf("load layout %q: %w", section, err)
	}
	return found, ok, nil
}

// Get returns the layout state of section, or the default state when the
// section has never been laid out.
func (r *LayoutRepo) Get(ctx context.Context, section string) (SectionLayout, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return SectionLayout{}, err
	}
	l, ok, err := r.find(ctx, section)
	if err != nil {
		return SectionLayout{}, err
	}
	if !ok {
		return defaultLayout(section), nil
	}
	return l, nil
}

// Set stages layout for section. The first layout ever chosen for a section
// is stored as both staging and published; later choices only touch staging
// and recompute the unpublished flag against the stored published value.
func (r *LayoutRepo) Set(ctx context.Context, section string, layout Layout) (SectionLayout, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return SectionLayout{}, err
	}
	layout, err = ParseLayout(string(layout))
	if err != nil {
		return SectionLayout{}, err
	}

	current, ok, err := r.find(ctx, section)
	if err != nil {
		return SectionLayout{}, err
	}
	now := r.timestamp()

	if !ok {
		err := r.db.Insert(ctx, store.Layouts, store.Values{
			"section":                 section,
			"layout_type":             string(layout),
			"published_layout_type":   string(layout),
			"has_unpublished_changes": false,
			"updated_at":              now,
		})
		switch {
		case err == nil:
			return SectionLayout{
				Section:        section,
				Staging:        layout,
				Published:      layout,
				UpdatedAt:      now,
				ReloadRequired: true,
			}, nil
		case store.IsConflict(err):
			// Another writer created the row between our read and insert.
			r.log.Info("layout insert raced, updating instead", zap.String("section", section))
			current, ok, err = r.find(ctx, section)
			if err != nil {
				return SectionLayout{}, err
			}
			if !ok {
				return SectionLayout{}, fmt.Errorf("layout %q vanished after conflict", section)
			}
		default:
			return SectionLayout{}, fmt.Errorf("create layout %q: %w", section, err)
		}
	}

	flag := layout != current.Published
	if _, err := r.db.Update(ctx, store.Layouts, []store.Filter{store.Eq("section", section)}, store.Values{
		"layout_type":             string(layout),
		"has_unpublished_changes": flag,
		"updated_at":              now,
	}); err != nil {
		return SectionLayout{}, fmt.Errorf("update layout %q: %w", section, err)
	}
	current.Staging = layout
	current.HasUnpublishedChanges = flag
	current.UpdatedAt = now
	current.ReloadRequired = true
	return current, nil
}

// Publish copies the staged layout of section to published and clears its
// flag. It fails with ErrNotFound when the section has no layout row.
func (r *LayoutRepo) Publish(ctx context.Context, section string) (SectionLayout, error) {
	section, err := normalizeSection(section)
	if err != nil {
		return SectionLayout{}, err
	}
	current, ok, err := r.find(ctx, section)
	if err != nil {
		return SectionLayout{}, err
	}
	if !ok {
		return SectionLayout{}, fmt.Errorf("layout %q: %w", section, ErrNotFound)
	}
	return r.publish(ctx, current)
}

func (r *LayoutRepo) publish(ctx context.Context, l SectionLayout) (SectionLayout, error) {
	now := r.timestamp()
	if _, err := r.db.Update(ctx, store.Layouts, []store.Filter{store.Eq("section", l.Section)}, store.Values{
		"published_layout_type":   string(l.Staging),
		"has_unpublished_changes": false,
		"published_at":            now,
	}); err != nil {
		return SectionLayout{}, fmt.Errorf("publish layout %q: %w", l.Section, err)
	}
	l.Published = l.Staging
	l.HasUnpublishedChanges = false
	l.PublishedAt = &now
	return l, nil
}

// list returns the layout rows matching where.
func (r *LayoutRepo) list(ctx context.Context, where ...store.Filter) ([]SectionLayout, error) {
	var out []SectionLayout
	err := r.db.Select(ctx, store.Layouts, store.Query{
		Columns: layoutColumns,
		Where:   where,
		OrderBy: []store.Order{store.Asc("section")},
	}, func(s store.Scanner) error {
		l, err := scanLayout(s)
		if err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		if store.IsUnprovisioned(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Unpublished returns the sections whose layout has unpublished changes.
func (r *LayoutRepo) Unpublished(ctx context.Context) ([]string, error) {
	rows, err := r.list(ctx, store.Eq("has_unpublished_changes", true))
	if err != nil {
		return nil, fmt.Errorf("list pending layouts: %w", err)
	}
	sections := make([]string, len(rows))
	for i, l := range rows {
		sections[i] = l.Section
	}
	return sections, nil
}
