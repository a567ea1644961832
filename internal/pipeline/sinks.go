package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/nao1215/sitecrawl/internal/urlcanon"
)

// RecordSink writes records as JSON lines.
// The writer is flushed at the end of every job, so a finished seed is
// complete on disk even if a later seed is interrupted.
type RecordSink struct {
	w *report.RecordWriter
}

// NewRecordSink creates a RecordSink writing through w.
func NewRecordSink(w *report.RecordWriter) *RecordSink {
	return &RecordSink{w: w}
}

// Name returns the sink name.
func (s *RecordSink) Name() string {
	return "records"
}

// Begin does nothing.
func (s *RecordSink) Begin(context.Context, Job) error {
	return nil
}

// Consume writes one record.
func (s *RecordSink) Consume(_ context.Context, _ Job, rec model.PageRecord) error {
	return s.w.Write(rec)
}

// End flushes the writer.
func (s *RecordSink) End(context.Context, Job, model.SeedSummary) error {
	return s.w.Flush()
}

// EchoSink prints one short line per record, for watching a crawl whose
// records go to a file.
type EchoSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewEchoSink creates an EchoSink printing to out.
func NewEchoSink(out io.Writer) *EchoSink {
	return &EchoSink{out: out}
}

// Name returns the sink name.
func (s *EchoSink) Name() string {
	return "echo"
}

// Begin does nothing.
func (s *EchoSink) Begin(context.Context, Job) error {
	return nil
}

// Consume prints the depth, URL and title of a record.
func (s *EchoSink) Consume(_ context.Context, _ Job, rec model.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := rec.Title
	if title == "" {
		title = "(no title)"
	}
	_, err := fmt.Fprintf(s.out, "[%d] %s  %s\n", rec.Depth, rec.URL, title)
	return err
}

// End prints a one-line result of the job.
func (s *EchoSink) End(_ context.Context, job Job, summary model.SeedSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("done %s: %d pages in %s", job.Seed, summary.Stats.FetchedOK, summary.Duration.Round(time.Millisecond))
	if summary.Error != "" {
		line += " (stopped early: " + summary.Error + ")"
	}
	_, err := fmt.Fprintln(s.out, line)
	return err
}

// HistorySink saves every job as a run in the history database.
type HistorySink struct {
	db     *database.HistoryDB
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	runs map[int]int64
}

// HistorySinkOption configures a HistorySink.
type HistorySinkOption func(*HistorySink)

// WithHistoryClock sets the clock used for run timestamps.
func WithHistoryClock(now func() time.Time) HistorySinkOption {
	return func(s *HistorySink) {
		s.now = now
	}
}

// WithHistoryLogger sets a custom logger for the history sink.
func WithHistoryLogger(logger *slog.Logger) HistorySinkOption {
	return func(s *HistorySink) {
		s.logger = logger
	}
}

// NewHistorySink creates a HistorySink storing runs in db.
func NewHistorySink(db *database.HistoryDB, opts ...HistorySinkOption) *HistorySink {
	s := &HistorySink{
		db:     db,
		now:    time.Now,
		logger: slog.Default(),
		runs:   make(map[int]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the sink name.
func (s *HistorySink) Name() string {
	return "history"
}

// Begin creates the run row of the job.
func (s *HistorySink) Begin(ctx context.Context, job Job) error {
	id, err := s.db.BeginRun(ctx, HistoryKey(job.Seed), s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runs[job.Index] = id
	s.mu.Unlock()

	s.logger.Debug("history run started", "seed", job.Seed, "run", id)
	return nil
}

// Consume stores one page of the job's run.
func (s *HistorySink) Consume(ctx context.Context, job Job, rec model.PageRecord) error {
	id, err := s.runID(job)
	if err != nil {
		return err
	}
	return s.db.SavePage(ctx, id, rec)
}

// End stores the final stats of the job's run.
//
// Design decision: The stats are written with a fresh context. An
// interrupted crawl cancels ctx, and its partial run is still worth
// recording together with the error that stopped it.
func (s *HistorySink) End(_ context.Context, job Job, summary model.SeedSummary) error {
	id, err := s.runID(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.runs, job.Index)
	s.mu.Unlock()

	return s.db.FinishRun(context.Background(), id, summary.Stats, s.now(), summary.Error)
}

// HistoryKey returns the seed under which runs are stored: the canonical
// URL, so that "https://Example.com" and "https://example.com/" share one
// history. Seeds that cannot be canonicalized are stored as given.
func HistoryKey(seed string) string {
	if canonical, err := urlcanon.New().Canonicalize(seed); err == nil {
		return canonical
	}
	return seed
}

func (s *HistorySink) runID(job Job) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.runs[job.Index]
	if !ok {
		return 0, fmt.Errorf("no history run for seed %s", job.Seed)
	}
	return id, nil
}
