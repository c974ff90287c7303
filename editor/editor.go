// Package editor implements the staging/publish content model behind the
// visual editor. Every editable section has a staging and a published value
// for its layout, each of its text fields and its active image; edits touch
// the staging side and set a has-unpublished-changes flag, publishing copies
// staging over published and clears the flag.
//
// The repositories talk to the store through store.Querier and never hold
// locks of their own: single-writer editing is assumed and multi-row
// operations are sequential, not atomic.
package editor

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eringen/stagehand/store"
)

var (
	// ErrNotFound is returned when an operation needs a row that does not exist.
	ErrNotFound = errors.New("editor: not found")
	// ErrInvalidLayout is returned for a layout name outside the known set.
	ErrInvalidLayout = errors.New("editor: invalid layout")
	// ErrInvalidSection is returned for an empty section identifier.
	ErrInvalidSection = errors.New("editor: section is required")
	// ErrInvalidKey is returned for an empty content key.
	ErrInvalidKey = errors.New("editor: content key is required")
)

// Mode selects which side of a staged value to read.
type Mode string

const (
	Staging   Mode = "staging"
	Published Mode = "published"
)

// ParseMode maps a query-string value to a Mode; anything but "published"
// reads staging.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(Published)) {
		return Published
	}
	return Staging
}

// Option configures the repositories built by New.
type Option func(*base)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLogger sets the logger used for recovered and skipped failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) { b.log = l }
}

// base is shared by every repository.
type base struct {
	db  store.Querier
	now func() time.Time
	log *zap.Logger
}

func newBase(db store.Querier, opts []Option) base {
	b := base{
		db:  db,
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) timestamp() time.Time {
	return b.now().UTC()
}

func normalizeSection(section string) (string, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return "", ErrInvalidSection
	}
	return section, nil
}

// Editor bundles the repositories, publisher and aggregator over one store.
type Editor struct {
	Layouts    *LayoutRepo
	Content    *ContentRepo
	Images     *ImageRepo
	Publisher  *Publisher
	Aggregator *Aggregator
	Notifier   *Notifier
}

// New wires an Editor. objects may be nil when uploads are not needed.
func New(db store.Querier, objects ObjectStore, opts ...Option) *Editor {
	notifier := NewNotifier()
	agg := NewAggregator(db, opts...)
	return &Editor{
		Layouts:    NewLayoutRepo(db, opts...),
		Content:    NewContentRepo(db, notifier, opts...),
		Images:     NewImageRepo(db, objects, opts...),
		Publisher:  NewPublisher(db, agg, opts...),
		Aggregator: agg,
		Notifier:   notifier,
	}
}
