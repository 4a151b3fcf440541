package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// DefaultPause is the voluntary yield between page fetches.
const DefaultPause = 5 * time.Millisecond

// State is a step of an export run.
type State string

const (
	StateFetchingFirstPage State = "fetching_first_page"
	StateEmpty             State = "empty"
	StateHeaderWritten     State = "header_written"
	StateFetchingNextPage  State = "fetching_next_page"
	StatePageWritten       State = "page_written"
	StateExhausted         State = "exhausted"
	StateUpstreamFailed    State = "upstream_failed"
	StateDone              State = "done"
)

// Request bounds an export run.
type Request struct {
	Limit    int // total row budget
	PageSize int // rows per upstream fetch
	Offset   int // starting offset in the source
}

// Validate checks Limit > 0, PageSize > 0 and Offset >= 0.
func (r Request) Validate() error {
	switch {
	case r.Limit <= 0:
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, r.Limit)
	case r.PageSize <= 0:
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidRequest, r.PageSize)
	case r.Offset < 0:
		return fmt.Errorf("%w: offset must not be negative, got %d", ErrInvalidRequest, r.Offset)
	}

	return nil
}

// Cursor tracks progress through the source.
// Written never exceeds Limit and PageOffset advances by rows received.
type Cursor struct {
	Written    int
	PageOffset int
	Limit      int
}

// Result summarizes a finished export.
type Result struct {
	Rows      int
	Pages     int
	Truncated bool   // a later page failed or the run was canceled
	Reason    string // why the export was truncated
}

// Streamer exports rows from a PageFetcher as CSV, holding at most one page
// in memory at a time.
type Streamer struct {
	fetcher PageFetcher
	source  Source
	quoting Quoting
	pause   time.Duration
	logger  *zap.Logger
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithQuoting sets the cell quoting mode.
func WithQuoting(q Quoting) Option {
	return func(s *Streamer) { s.quoting = q }
}

// WithPause sets the yield between page fetches. Zero disables it.
func WithPause(d time.Duration) Option {
	return func(s *Streamer) { s.pause = d }
}

// NewStreamer creates a streamer reading source through fetcher.
func NewStreamer(fetcher PageFetcher, source Source, logger *zap.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		fetcher: fetcher,
		source:  source,
		quoting: QuoteRFC4180,
		pause:   DefaultPause,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// Stream runs a whole export into w. See Begin and Export.Run.
func (s *Streamer) Stream(ctx context.Context, w io.Writer, req Request) (Result, error) {
	exp, err := s.Begin(ctx, req)
	if err != nil {
		return Result{}, err
	}

	return exp.Run(ctx, w)
}

// Begin fetches the first page. A failure here is returned as an
// *UpstreamError before anything is written, so callers can still report it
// as an error status.
func (s *Streamer) Begin(ctx context.Context, req Request) (*Export, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	size := min(req.PageSize, req.Limit-req.Offset)
	if size <= 0 {
		// offset past the budget: still read one budget-sized page
		size = min(req.PageSize, req.Limit)
	}

	exp := &Export{
		streamer: s,
		req:      req,
		state:    StateFetchingFirstPage,
		cursor:   Cursor{PageOffset: req.Offset, Limit: req.Limit},
	}

	rows, err := s.fetch(ctx, req.Offset, size)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		exp.empty = true
		exp.state = StateEmpty

		return exp, nil
	}

	exp.columns = rows[0].Columns()
	exp.first = rows

	return exp, nil
}

func (s *Streamer) fetch(ctx context.Context, offset, limit int) ([]Row, error) {
	q := PageQuery{Source: s.source, Limit: limit, Offset: offset}

	rows, err := s.fetcher.FetchPage(ctx, q)
	if err != nil {
		return nil, &UpstreamError{Offset: offset, Limit: limit, Err: err}
	}

	return rows, nil
}

// Export is a started export whose first page has been fetched.
type Export struct {
	streamer *Streamer
	req      Request
	columns  []string
	first    []Row
	empty    bool
	state    State
	cursor   Cursor
}

// Empty reports whether the first page had no rows. An empty export writes nothing.
func (e *Export) Empty() bool {
	return e.empty
}

// Columns returns the header derived from the first row.
func (e *Export) Columns() []string {
	out := make([]string, len(e.columns))
	copy(out, e.columns)

	return out
}

// State returns the current step of the run.
func (e *Export) State() State {
	return e.state
}

// Cursor returns the current progress.
func (e *Export) Cursor() Cursor {
	return e.cursor
}

// Run writes the header, the first page and every following page to w.
// A failed later page or a canceled ctx ends the run with Result.Truncated
// set; the bytes already written stay valid CSV. Only write errors are
// returned. Run must be called at most once.
func (e *Export) Run(ctx context.Context, w io.Writer) (Result, error) {
	var res Result

	if e.Empty() {
		e.state = StateDone

		return res, nil
	}

	s := e.streamer
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw, quoting: s.quoting, columns: e.columns}

	if err := enc.writeHeader(); err != nil {
		return res, fmt.Errorf("write header: %w", err)
	}

	e.state = StateHeaderWritten

	first := e.first
	e.first = nil

	if err := e.writePage(enc, first, &res); err != nil {
		return res, err
	}

	if err := flush(bw, w); err != nil {
		return res, err
	}

	for e.cursor.Written < e.cursor.Limit {
		toFetch := min(e.req.PageSize, e.cursor.Limit-e.cursor.Written)
		if toFetch <= 0 {
			break
		}

		if err := ctx.Err(); err != nil {
			e.truncate(&res, err)

			break
		}

		e.state = StateFetchingNextPage

		rows, err := s.fetch(ctx, e.cursor.PageOffset, toFetch)
		if err != nil {
			e.state = StateUpstreamFailed
			e.truncate(&res, err)

			break
		}

		if len(rows) == 0 {
			e.state = StateExhausted

			break
		}

		if err := e.writePage(enc, rows, &res); err != nil {
			return res, err
		}

		if err := flush(bw, w); err != nil {
			return res, err
		}

		e.state = StatePageWritten

		if e.cursor.Written < e.cursor.Limit && !sleep(ctx, s.pause) {
			e.truncate(&res, ctx.Err())

			break
		}
	}

	e.state = StateDone

	return res, nil
}

// writePage writes rows within the remaining budget and advances the cursor
// by the number of rows received.
func (e *Export) writePage(enc *encoder, rows []Row, res *Result) error {
	if remaining := e.cursor.Limit - e.cursor.Written; len(rows) > remaining {
		rows = rows[:remaining]
	}

	for _, row := range rows {
		if err := enc.writeRow(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	e.cursor.Written += len(rows)
	e.cursor.PageOffset += len(rows)
	res.Rows = e.cursor.Written
	res.Pages++

	return nil
}

func (e *Export) truncate(res *Result, err error) {
	res.Truncated = true
	res.Reason = err.Error()

	e.streamer.logger.Warn("export truncated",
		zap.String("table", e.streamer.source.Table),
		zap.Int("written", e.cursor.Written),
		zap.Int("limit", e.cursor.Limit),
		zap.Int("pageOffset", e.cursor.PageOffset),
		zap.Error(err),
	)
}

type flusher interface {
	Flush()
}

func flush(bw *bufio.Writer, w io.Writer) error {
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if f, ok := w.(flusher); ok {
		f.Flush()
	}

	return nil
}

// sleep waits d unless ctx is done first. It reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
