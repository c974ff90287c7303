package editor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/eringen/stagehand/store"
)

// SectionSet is a set of section identifiers.
type SectionSet map[string]struct{}

// NewSectionSet builds a set from sections, ignoring blanks.
func NewSectionSet(sections ...string) SectionSet {
	s := make(SectionSet, len(sections))
	s.Add(sections...)
	return s
}

// Add inserts sections into s.
func (s SectionSet) Add(sections ...string) {
	for _, sec := range sections {
		if sec != "" {
			s[sec] = struct{}{}
		}
	}
}

// Has reports whether section is in s.
func (s SectionSet) Has(section string) bool {
	_, ok := s[section]
	return ok
}

// Sorted returns the members of s in lexical order, never nil.
func (s SectionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for sec := range s {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Aggregator computes which sections have unpublished changes of any kind.
type Aggregator struct {
	layouts *LayoutRepo
	content *ContentRepo
	images  *ImageRepo
}

// NewAggregator creates an Aggregator reading from db.
func NewAggregator(db store.Querier, opts ...Option) *Aggregator {
	return &Aggregator{
		layouts: NewLayoutRepo(db, opts...),
		content: NewContentRepo(db, nil, opts...),
		images:  NewImageRepo(db, nil, opts...),
	}
}

// Unpublished returns the union of sections flagged in the layout, content
// and image tables. The three reads run concurrently; it writes nothing.
func (a *Aggregator) Unpublished(ctx context.Context) (SectionSet, error) {
	var layouts, content, images []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		layouts, err = a.layouts.Unpublished(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		content, err = a.content.Unpublished(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		images, err = a.images.Unpublished(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate unpublished sections: %w", err)
	}

	set := NewSectionSet(layouts...)
	set.Add(content...)
	set.Add(images...)
	return set, nil
}
