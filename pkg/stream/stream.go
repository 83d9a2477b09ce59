// Package stream turns one search query into an ordered sequence of merged
// records, fetching cursor-linked pages on demand.
//
// A Stream is pulled one record at a time:
//
//	s := stream.New(stream.SearchRequest{Query: "golang"}, deps)
//	for {
//		rec, ok, err := s.Next(ctx)
//		if err != nil {
//			return err
//		}
//		if !ok {
//			break
//		}
//		handle(rec)
//	}
//
// Pages are fetched strictly in cursor order, one at a time. Once a stream
// terminates it never fetches again; Termination reports why it stopped.
package stream

import (
	"context"
	"iter"
	"strconv"

	"github.com/Sternrassler/search-scraper/pkg/auth"
	"github.com/Sternrassler/search-scraper/pkg/logging"
	"github.com/Sternrassler/search-scraper/pkg/page"
	"github.com/Sternrassler/search-scraper/pkg/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Sternrassler/search-scraper/pkg/stream"

// SearchRequest describes one logical query.
type SearchRequest struct {
	// Query is the free-text search query.
	Query string

	// Limit caps the number of yielded records when set.
	Limit *int

	// MinID ends the stream at the first record whose id is below it.
	MinID *uint64
}

// Fetcher retrieves the raw body of one page. *client.Client implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string, headers auth.Headers) ([]byte, error)
}

// Deps are the collaborators a stream drives.
type Deps struct {
	Encoder *query.Encoder
	Fetcher Fetcher
	Headers auth.Headers
}

// Reason tells why a stream terminated.
type Reason string

const (
	// ReasonLimit means the configured record limit was reached.
	ReasonLimit Reason = "limit"

	// ReasonFloor means the next record fell below the id floor.
	ReasonFloor Reason = "floor"

	// ReasonError means a fetch, decode or validation error occurred.
	ReasonError Reason = "error"

	// ReasonExhausted means too many consecutive pages came back empty.
	ReasonExhausted Reason = "exhausted"
)

// Termination is the closed state of a stream.
type Termination struct {
	Reason Reason

	// Err is set only for ReasonError.
	Err error
}

// Option configures a Stream.
type Option func(*Stream)

// WithMaxEmptyPages ends the stream with ReasonExhausted after n consecutive
// pages without records. Zero (the default) keeps fetching as long as the
// upstream returns a cursor.
func WithMaxEmptyPages(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.maxEmptyPages = n
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

// WithTracerProvider sets the provider page fetch spans are created with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Stream) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// Stream is a pull-based record sequence. It is not safe for concurrent use.
type Stream struct {
	req  SearchRequest
	deps Deps

	id     string
	logger zerolog.Logger
	tracer trace.Tracer

	maxEmptyPages int

	buffer     []page.Record
	cursor     string
	yielded    int
	pages      int
	emptyPages int

	term         *Termination
	errDelivered bool
}

// New creates a stream for req. It panics if deps lacks an encoder or a
// fetcher.
func New(req SearchRequest, deps Deps, opts ...Option) *Stream {
	if deps.Encoder == nil {
		panic("stream: encoder cannot be nil")
	}
	if deps.Fetcher == nil {
		panic("stream: fetcher cannot be nil")
	}

	s := &Stream{
		req:    req,
		deps:   deps,
		id:     uuid.NewString(),
		logger: logging.NewLogger("stream"),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().
		Str("stream_id", s.id).
		Str("query", req.Query).
		Logger()

	return s
}

// ID returns the identifier used to correlate this stream's logs.
func (s *Stream) ID() string {
	return s.id
}

// Termination returns the closed state, or nil while the stream is open.
func (s *Stream) Termination() *Termination {
	return s.term
}

// Yielded returns the number of records handed out so far.
func (s *Stream) Yielded() int {
	return s.yielded
}

// Next returns the next record. It returns (rec, true, nil) for a record,
// (nil, false, err) exactly once when the stream fails, and (nil, false, nil)
// once the sequence has ended. An empty page does not end the sequence; Next
// fetches again until a record, a stop condition or an error turns up.
func (s *Stream) Next(ctx context.Context) (page.Record, bool, error) {
	for {
		if s.term != nil {
			if s.term.Err != nil && !s.errDelivered {
				s.errDelivered = true
				return nil, false, s.term.Err
			}
			return nil, false, nil
		}

		if s.req.Limit != nil && s.yielded >= *s.req.Limit {
			s.terminate(ReasonLimit, nil)
			continue
		}

		if len(s.buffer) > 0 {
			rec := s.buffer[0]
			s.buffer[0] = nil
			s.buffer = s.buffer[1:]

			if s.req.MinID != nil {
				id, err := strconv.ParseUint(rec.ID(), 10, 64)
				if err != nil {
					s.terminate(ReasonError, &ValidationError{ID: rec.ID(), Err: err})
					continue
				}
				if id < *s.req.MinID {
					s.logger.Debug().
						Uint64("id", id).
						Uint64("min_id", *s.req.MinID).
						Msg("Record below floor")
					s.terminate(ReasonFloor, nil)
					continue
				}
			}

			s.yielded++
			recordsYieldedTotal.Inc()
			return rec, true, nil
		}

		n, err := s.fetch(ctx)
		if err != nil {
			s.terminate(ReasonError, err)
			continue
		}
		if n == 0 {
			s.emptyPages++
			if s.maxEmptyPages > 0 && s.emptyPages >= s.maxEmptyPages {
				s.terminate(ReasonExhausted, nil)
			}
			continue
		}
		s.emptyPages = 0
	}
}

// All adapts the stream to a range-over-func sequence. A terminal error is
// delivered as the last pair.
func (s *Stream) All(ctx context.Context) iter.Seq2[page.Record, error] {
	return func(yield func(page.Record, error) bool) {
		for {
			rec, ok, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// fetch pulls the page at the current cursor into the buffer and returns the
// number of records it carried.
func (s *Stream) fetch(ctx context.Context) (int, error) {
	pageNum := s.pages + 1
	ctx, span := s.tracer.Start(ctx, "stream.fetch_page", trace.WithAttributes(
		attribute.String("stream.id", s.id),
		attribute.Int("stream.page", pageNum),
		attribute.Bool("stream.has_cursor", s.cursor != ""),
	))
	defer span.End()

	pageURL := s.deps.Encoder.Encode(s.req.Query, s.cursor)

	s.logger.Debug().
		Int("page", pageNum).
		Str("cursor", s.cursor).
		Msg("Fetching page")

	body, err := s.deps.Fetcher.FetchPage(ctx, pageURL, s.deps.Headers)
	if err != nil {
		pagesFetchedTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return 0, err
	}

	p, err := page.Decode(body)
	if err != nil {
		pagesFetchedTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return 0, err
	}

	s.pages = pageNum
	s.buffer = append(s.buffer, p.Records...)
	s.cursor = p.Cursor

	result := "ok"
	if len(p.Records) == 0 {
		result = "empty"
	}
	pagesFetchedTotal.WithLabelValues(result).Inc()
	span.SetAttributes(attribute.Int("stream.records", len(p.Records)))

	s.logger.Debug().
		Int("page", pageNum).
		Int("records", len(p.Records)).
		Str("cursor", p.Cursor).
		Msg("Page decoded")

	return len(p.Records), nil
}

func (s *Stream) terminate(reason Reason, err error) {
	s.term = &Termination{Reason: reason, Err: err}
	s.buffer = nil
	terminationsTotal.WithLabelValues(string(reason)).Inc()

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.
		Str("reason", string(reason)).
		Int("yielded", s.yielded).
		Int("pages", s.pages).
		Msg("Stream terminated")
}
