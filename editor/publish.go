package editor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/eringen/stagehand/store"
)

// RowFailure records one row a publish could not update.
type RowFailure struct {
	Table store.Table
	Key   string
	Err   error
}

func (f RowFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Table string `json:"table"`
		Key   string `json:"key"`
		Error string `json:"error"`
	}{string(f.Table), f.Key, f.Err.Error()})
}

// PublishReport counts what a publish updated. Failures lists the rows that
// were skipped; a non-empty list means the publish was partial.
type PublishReport struct {
	Layouts   int          `json:"layouts"`
	Images    int          `json:"images"`
	Content   int          `json:"content"`
	Failures  []RowFailure `json:"failures,omitempty"`
	Remaining []string     `json:"remaining"`
}

// Partial reports whether any row failed to publish.
func (r PublishReport) Partial() bool { return len(r.Failures) > 0 }

func (r *PublishReport) fail(log *zap.Logger, table store.Table, key string, err error) {
	log.Warn("publish row failed",
		zap.String("table", string(table)), zap.String("key", key), zap.Error(err))
	r.Failures = append(r.Failures, RowFailure{Table: table, Key: key, Err: err})
}

// Publisher runs the publish-all sweep.
type Publisher struct {
	base
	agg     *Aggregator
	layouts *LayoutRepo
	content *ContentRepo
	images  *ImageRepo
}

// NewPublisher creates a Publisher; agg recomputes the remaining set.
func NewPublisher(db store.Querier, agg *Aggregator, opts ...Option) *Publisher {
	return &Publisher{
		base:    newBase(db, opts),
		agg:     agg,
		layouts: NewLayoutRepo(db, opts...),
		content: NewContentRepo(db, nil, opts...),
		images:  NewImageRepo(db, nil, opts...),
	}
}

// PublishAll publishes the layouts of pending, then every flagged image row,
// then every flagged content row, one row at a time. A row that fails is
// logged, recorded in the report and skipped. Errors are returned only when a
// sweep cannot list its rows. The report's Remaining is the unpublished set
// recomputed afterwards.
//
// Images and content are swept across all sections regardless of pending.
func (p *Publisher) PublishAll(ctx context.Context, pending []string) (PublishReport, error) {
	var report PublishReport

	if len(pending) > 0 {
		layouts, err := p.layouts.list(ctx, store.In("section", pending...))
		if err != nil {
			return report, fmt.Errorf("list layouts to publish: %w", err)
		}
		for _, l := range layouts {
			if _, err := p.layouts.publish(ctx, l); err != nil {
				report.fail(p.log, store.Layouts, l.Section, err)
				continue
			}
			report.Layouts++
		}
	}

	images, err := p.images.Pending(ctx)
	if err != nil {
		return report, err
	}
	for _, img := range images {
		if err := p.images.publish(ctx, img); err != nil {
			report.fail(p.log, store.Images, img.ID, err)
			continue
		}
		report.Images++
	}

	items, err := p.content.Pending(ctx)
	if err != nil {
		return report, err
	}
	for _, c := range items {
		if err := p.content.publish(ctx, c); err != nil {
			report.fail(p.log, store.Content, c.Section+"/"+c.Key, err)
			continue
		}
		report.Content++
	}

	remaining, err := p.agg.Unpublished(ctx)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining.Sorted()

	p.log.Info("published",
		zap.Int("layouts", report.Layouts),
		zap.Int("images", report.Images),
		zap.Int("content", report.Content),
		zap.Int("failures", len(report.Failures)),
		zap.Int("remaining", len(report.Remaining)))
	return report, nil
}
