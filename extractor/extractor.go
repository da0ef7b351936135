// Package extractor queries the aggregate metrics of a list of monitored
// objects, isolating the failure of any one object from the others.
package extractor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	t128 "github.com/128technology/pca-importer/client"
	"github.com/128technology/pca-importer/logger"
)

// Fetcher issues one aggregate request for a monitored object.
type Fetcher interface {
	FetchMetrics(ctx context.Context, objectID string, config t128.QueryConfig, interval string) ([]t128.AggregateResult, t128.MetricSeries, error)
}

// Result is the outcome of querying one monitored object. Err is set when the
// object was skipped or its request failed.
type Result struct {
	Object  t128.MonitoredObject
	Config  t128.QueryConfig
	Results []t128.AggregateResult
	Series  t128.MetricSeries
	Err     error
}

// Skipped reports whether the object was not queried because its type is unknown.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, t128.ErrUnknownObjectType)
}

// Summary counts the outcomes of a run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize counts results by outcome.
func Summarize(results []Result) Summary {
	var summary Summary
	for _, result := range results {
		switch {
		case result.Err == nil:
			summary.Succeeded++
		case result.Skipped():
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary
}

// Extractor queries monitored objects using the registry's per type configuration.
type Extractor struct {
	fetcher     Fetcher
	registry    *t128.Registry
	interval    string
	concurrency int
	handler     Handler
}

// Handler receives each Result as soon as it and every earlier object are
// done, so handlers see results in input order.
type Handler func(result Result) error

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency sets the maximum number of objects queried at a time.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithHandler sets the Handler called for every Result during Run. Handler
// errors are logged and do not stop the run.
func WithHandler(h Handler) Option {
	return func(e *Extractor) {
		e.handler = h
	}
}

// New creates an Extractor querying interval for every object.
func New(fetcher Fetcher, registry *t128.Registry, interval string, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:     fetcher,
		registry:    registry,
		interval:    interval,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run queries every object and returns one Result per object in input order.
// Failures are logged and recorded on the Result; Run itself never fails.
func (e *Extractor) Run(ctx context.Context, objects []t128.MonitoredObject) []Result {
	out := newOrderedResults(len(objects), e.handler)

	if e.concurrency == 1 {
		for i, object := range objects {
			out.complete(i, e.extract(ctx, object))
		}
		return out.results
	}

	var group errgroup.Group
	group.SetLimit(e.concurrency)

	for i, object := range objects {
		i, object := i, object
		group.Go(func() error {
			out.complete(i, e.extract(ctx, object))
			return nil
		})
	}

	_ = group.Wait()
	return out.results
}

// orderedResults collects results by index and hands them to the handler in
// index order.
type orderedResults struct {
	mu      sync.Mutex
	handler Handler
	results []Result
	done    []bool
	next    int
}

func newOrderedResults(n int, handler Handler) *orderedResults {
	return &orderedResults{
		handler: handler,
		results: make([]Result, n),
		done:    make([]bool, n),
	}
}

func (o *orderedResults) complete(i int, result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.results[i] = result
	o.done[i] = true

	for ; o.next < len(o.done) && o.done[o.next]; o.next++ {
		if o.handler == nil {
			continue
		}
		if err := o.handler(o.results[o.next]); err != nil {
			object := o.results[o.next].Object
			logger.Log.WithObject(object.ID, object.ObjectType).Errorf("Handling result for %v: %v", object.ID, err)
		}
	}
}

func (e *Extractor) extract(ctx context.Context, object t128.MonitoredObject) Result {
	result := Result{Object: object}
	log := logger.Log.WithObject(object.ID, object.ObjectType)

	config, err := e.registry.Lookup(object.ObjectType)
	if err != nil {
		log.Warnf("Unknown objectType %q, skipping", object.ObjectType)
		result.Err = err
		return result
	}
	result.Config = config

	if err := ctx.Err(); err != nil {
		log.Errorf("Not fetching %v: %v", object.ID, err)
		result.Err = errors.Wrap(t128.ErrFetch, err.Error())
		return result
	}

	log.Infof("Fetching %v of %v for %v", config.Aggregation, config.MetricNames(), object.ID)

	results, series, err := e.fetcher.FetchMetrics(ctx, object.ID, config, e.interval)
	if err != nil {
		log.Errorf("Error fetching %v for ID %v: %v", config.Aggregation, object.ID, err)
		result.Err = err
		return result
	}

	result.Results = results
	result.Series = series
	log.Infof("Retrieved %v series for %v", len(series), object.ID)
	return result
}
