// Package drilldown manages the selected score and its detail view.
//
// Every selection change bumps a generation counter. Detail fetches capture
// the generation they were issued under and are applied only if it is still
// current when they complete, so a superseded selection never shows through.
package drilldown

import (
	"context"
	"sync"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"
)

const (
	fieldHistory     = "history"
	fieldExplanation = "explanation"
)

// Source loads the detail for a selection.
type Source interface {
	History(ctx context.Context, issuerID model.ID) ([]model.HistoryEntry, error)
	Explain(ctx context.Context, scoreID model.ID) ([]model.DriverExplanation, error)
}

// Controller owns the current selection and its detail.
type Controller struct {
	source  Source
	fetcher *fetch.Fetcher
	logger  logger.Logger

	mu         sync.Mutex
	selected   *model.ScoreRecord
	generation uint64
	detail     *Detail
	// cancel aborts the fetches of the current generation.
	cancel context.CancelFunc

	updates chan struct{}
	wg      sync.WaitGroup
}

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Controller loading detail from source through fetcher.
func New(source Source, fetcher *fetch.Fetcher, opts ...Option) *Controller {
	c := &Controller{
		source:  source,
		fetcher: fetcher,
		logger:  logger.Nop(),
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates signals after every visible state change. Signals coalesce.
func (c *Controller) Updates() <-chan struct{} { return c.updates }

// Wait blocks until in-flight detail fetches have returned.
func (c *Controller) Wait() { c.wg.Wait() }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Generation: c.generation}
	if c.selected != nil {
		sel := *c.selected
		st.Selected = &sel
	}
	if c.detail != nil {
		d := *c.detail
		d.History = append([]model.HistoryEntry(nil), d.History...)
		d.Explanation = append([]model.DriverExplanation(nil), d.Explanation...)
		st.Detail = &d
	}
	return st
}

// Select makes rec the current selection and loads its history and
// explanation concurrently. It returns the generation of the new selection.
func (c *Controller) Select(ctx context.Context, rec model.ScoreRecord) uint64 {
	fctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	gen := c.bump()
	c.cancel = cancel
	c.selected = &rec
	c.detail = &Detail{}
	c.notify()
	c.mu.Unlock()

	c.logger.Debug(ctx, "score selected",
		logger.Int64("scoreId", int64(rec.ScoreID)),
		logger.Int64("issuerId", int64(rec.IssuerID)),
		logger.Uint64("generation", gen))

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		h, err := fetch.Do(fctx, c.fetcher, fieldHistory, func(ctx context.Context) ([]model.HistoryEntry, error) {
			return c.source.History(ctx, rec.IssuerID)
		})
		c.apply(ctx, gen, fieldHistory, err, func(d *Detail) {
			d.History, d.HistoryErr, d.HistoryDone = h, err, true
		})
	}()
	go func() {
		defer c.wg.Done()
		e, err := fetch.Do(fctx, c.fetcher, fieldExplanation, func(ctx context.Context) ([]model.DriverExplanation, error) {
			return c.source.Explain(ctx, rec.ScoreID)
		})
		c.apply(ctx, gen, fieldExplanation, err, func(d *Detail) {
			d.Explanation, d.ExplanationErr, d.ExplanationDone = e, err, true
		})
	}()
	return gen
}

// Deselect clears the selection. Fetches still in flight are discarded.
func (c *Controller) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bump()
	c.selected = nil
	c.detail = nil
	c.notify()
}

// Reload fetches the detail of the current selection again.
func (c *Controller) Reload(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	sel := c.selected
	c.mu.Unlock()
	if sel == nil {
		return 0, ErrNoSelection
	}
	return c.Select(ctx, *sel), nil
}

// bump starts a new generation and cancels the fetches of the old one.
// Must be called with mu held.
func (c *Controller) bump() uint64 {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	return c.generation
}

// apply stores a fetch result if gen is still current.
func (c *Controller) apply(ctx context.Context, gen uint64, field string, err error, set func(*Detail)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.detail == nil {
		metrics.RecordDetailDiscarded(field)
		c.logger.Debug(ctx, "discarding superseded detail",
			logger.String("field", field),
			logger.Uint64("generation", gen),
			logger.Uint64("current", c.generation))
		return
	}
	if err != nil {
		c.logger.Warn(ctx, "detail fetch failed",
			logger.String("field", field),
			logger.Uint64("generation", gen),
			logger.Error(err))
	}
	set(c.detail)
	metrics.RecordDetailApplied(field)
	c.notify()
}

// notify must be called with mu held.
func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
