package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Job identifies the crawl of one seed within a batch.
// Index is the seed's position in the input, so sinks can tell apart two
// jobs for the same seed URL.
type Job struct {
	Index int
	Seed  string
}

// Sink receives the page records of crawl jobs.
// Begin and End bracket the records of each job. With a batch size above one
// the calls for different jobs interleave, so sinks must be safe for
// concurrent use.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows sinks to carry state such as writers and open run IDs
// 2. It provides a Name() method for logging and debugging
// 3. Sinks that only care about records can leave Begin and End empty
type Sink interface {
	// Begin is called before the first record of a job.
	Begin(ctx context.Context, job Job) error

	// Consume receives one record.
	Consume(ctx context.Context, job Job, rec model.PageRecord) error

	// End is called once the job finished, also when it ended early.
	End(ctx context.Context, job Job, summary model.SeedSummary) error

	// Name returns the sink's name for logging purposes.
	Name() string
}

// Pipeline fans records out to its sinks in the order they were added.
type Pipeline struct {
	// sinks contains the ordered list of destinations.
	sinks []Sink

	// logger is used for structured logging during delivery.
	logger *slog.Logger

	// continueOnError determines whether the remaining sinks still receive
	// a record after one sink failed. If false, delivery stops on the first
	// error and the crawl of the job ends.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to keep delivering to the
// other sinks when one fails. The errors are still returned, joined.
//
// Design decision: The default is to stop, because a failing record writer
// (full disk, closed pipe) means the output is incomplete and crawling on
// would only spend requests on pages nobody receives.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Sinks should be added using AddSink after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		sinks: make([]Sink, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddSink appends a sink to the pipeline.
func (p *Pipeline) AddSink(sink Sink) {
	p.sinks = append(p.sinks, sink)
}

// AddSinks appends multiple sinks to the pipeline.
func (p *Pipeline) AddSinks(sinks ...Sink) {
	p.sinks = append(p.sinks, sinks...)
}

// SinkCount returns the number of sinks in the pipeline.
func (p *Pipeline) SinkCount() int {
	return len(p.sinks)
}

// SinkNames returns the names of all sinks in delivery order.
func (p *Pipeline) SinkNames() []string {
	names := make([]string, len(p.sinks))
	for i, sink := range p.sinks {
		names[i] = sink.Name()
	}
	return names
}

// Begin announces a job to every sink.
func (p *Pipeline) Begin(ctx context.Context, job Job) error {
	return p.each("begin", job, func(s Sink) error {
		return s.Begin(ctx, job)
	})
}

// Deliver hands one record to every sink.
func (p *Pipeline) Deliver(ctx context.Context, job Job, rec model.PageRecord) error {
	return p.each("consume", job, func(s Sink) error {
		return s.Consume(ctx, job, rec)
	})
}

// End reports the outcome of a job to every sink.
//
// Design decision: End always reaches every sink, regardless of
// continueOnError, so that each sink can release what Begin acquired.
func (p *Pipeline) End(ctx context.Context, job Job, summary model.SeedSummary) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.End(ctx, job, summary); err != nil {
			p.logSinkError("end", sink, job, err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) each(stage string, job Job, fn func(Sink) error) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := fn(sink); err != nil {
			p.logSinkError(stage, sink, job, err)
			err = fmt.Errorf("%s: %w", sink.Name(), err)
			if !p.continueOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) logSinkError(stage string, sink Sink, job Job, err error) {
	p.logger.Error("sink failed",
		"stage", stage,
		"sink", sink.Name(),
		"seed", job.Seed,
		"error", err,
	)
}
