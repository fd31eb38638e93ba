package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// DefaultPageSize is the page size used when none is given.
const DefaultPageSize = 100

// PageSource fetches one page of job results.
type PageSource interface {
	ExpansionPage(ctx context.Context, handle domain.JobHandle, q domain.PageQuery) (domain.Page, error)
}

// PageObserver receives pagination measurements.
type PageObserver interface {
	ObservePageFetched(items int)
}

type nopPageObserver struct{}

func (nopPageObserver) ObservePageFetched(int) {}

// Collector walks the paged results of a finished job.
type Collector struct {
	src      PageSource
	logger   zerolog.Logger
	observer PageObserver
	maxPages int
}

// CollectorOption customises a Collector.
type CollectorOption func(*Collector)

// WithCollectorLogger sets the logger.
func WithCollectorLogger(l zerolog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// WithPageObserver sets the metrics observer.
func WithPageObserver(o PageObserver) CollectorOption {
	return func(c *Collector) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithMaxPages stops collection after n pages. Zero means no limit.
func WithMaxPages(n int) CollectorOption {
	return func(c *Collector) { c.maxPages = n }
}

// NewCollector creates a collector over src.
func NewCollector(src PageSource, opts ...CollectorOption) *Collector {
	c := &Collector{
		src:      src,
		logger:   zerolog.Nop(),
		observer: nopPageObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectAll requests pages 1, 2, ... and concatenates them in request order.
// It stops at the first page holding fewer than pageSize items, including an
// empty one. The reported total is not consulted.
func (c *Collector) CollectAll(ctx context.Context, handle domain.JobHandle, pageSize int, filter, sort string) ([]domain.Candidate, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []domain.Candidate
	for page := 1; ; page++ {
		p, err := c.src.ExpansionPage(ctx, handle, domain.PageQuery{
			Page:    page,
			PerPage: pageSize,
			Filter:  filter,
			Sort:    sort,
		})
		if err != nil {
			return nil, fmt.Errorf("collecting job %s: %w", handle, err)
		}
		c.observer.ObservePageFetched(len(p.Data))

		all = append(all, p.Data...)
		if len(p.Data) < pageSize {
			break
		}
		if c.maxPages > 0 && page >= c.maxPages {
			c.logger.Warn().Int("pages", page).Msg("page limit reached, stopping collection")
			break
		}
	}

	c.logger.Info().Str("job_uid", string(handle)).Int("collected", len(all)).Msg("expansion results collected")
	if all == nil {
		all = []domain.Candidate{}
	}
	return all, nil
}
