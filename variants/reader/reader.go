package reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chriskuehl/vcfrange/variants/logging"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

// DefaultBufferCapacity is the working buffer size used unless WithBufferCapacity is given.
const DefaultBufferCapacity = 1_000_000

var (
	// ErrImplausibleLength is the cause of a FramingError for a length prefix above the
	// configured maximum field length.
	ErrImplausibleLength = errors.New("implausible length prefix")
	// ErrRecordTooLarge is the cause of a FramingError for a field that can never fit in the
	// working buffer.
	ErrRecordTooLarge = errors.New("record does not fit in buffer")
	// ErrAlreadyConsumed is returned by GetVcfData when the stream was already read.
	ErrAlreadyConsumed = errors.New("stream already consumed")

	// errTruncated means the stream ended partway through a record.
	errTruncated = errors.New("stream ended inside a record")
)

// FramingError reports that the object is not a valid sequence of records.
type FramingError struct {
	// Offset is the position in the object at which decoding failed.
	Offset int64
	Err    error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %v", e.Offset, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

type options struct {
	bufferCapacity  int
	maxFieldLength  int
	schema          record.Schema
	sortedPositions bool
}

type Option func(*options)

// WithBufferCapacity sets the working buffer size. Each refill copies the unread tail of the
// buffer (at most one record) to its start, so a smaller buffer means more refills and more
// copying per byte streamed.
func WithBufferCapacity(n int) Option {
	return func(o *options) {
		o.bufferCapacity = n
	}
}

// WithMaxFieldLength bounds the length prefix of a variable-length field. The default is the
// buffer capacity.
func WithMaxFieldLength(n int) Option {
	return func(o *options) {
		o.maxFieldLength = n
	}
}

func WithSchema(s record.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithSortedPositions stops reading at the first record past the end of the region.
func WithSortedPositions(sorted bool) Option {
	return func(o *options) {
		o.sortedPositions = sorted
	}
}

// Stats describes the work done by one GetVcfData call.
type Stats struct {
	BytesRead int64
	Refills   int
	Decoded   int
	Matched   int
	// Discarded is the number of trailing bytes that did not form a complete record.
	Discarded int
}

// ReadVcfData streams records out of a single object. It is not safe for concurrent use.
type ReadVcfData struct {
	logger  logging.Logger
	session storage.Session
	contig  string
	opts    options

	buf        []byte
	dataLength int
	bufferPos  int
	// base is the object offset of buf[0].
	base  int64
	eof   bool
	done  bool
	stats Stats
}

// New opens the object and binds the reader to the contig the object holds. The stream is
// released when GetVcfData returns, or by Close if GetVcfData is never called.
func New(
	ctx context.Context,
	logger logging.Logger,
	backend storage.Backend,
	loc storage.Locator,
	contig string,
	opts ...Option,
) (*ReadVcfData, error) {
	o := options{
		bufferCapacity: DefaultBufferCapacity,
		schema:         record.DefaultSchema,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxFieldLength <= 0 {
		o.maxFieldLength = o.bufferCapacity
	}
	if o.bufferCapacity < o.schema.MinSize() {
		return nil, fmt.Errorf("buffer capacity %d is smaller than a record header (%d bytes)", o.bufferCapacity, o.schema.MinSize())
	}
	session, err := backend.Open(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", loc, err)
	}
	logger.Debug(ctx, "opened object", "object", loc.String(), "buffer_capacity", o.bufferCapacity)
	return &ReadVcfData{
		logger:  logger,
		session: session,
		contig:  contig,
		opts:    o,
		buf:     make([]byte, o.bufferCapacity),
	}, nil
}

// Close releases the stream. It is safe to call more than once.
func (r *ReadVcfData) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.buf = nil
	return r.session.Close()
}

func (r *ReadVcfData) Stats() Stats {
	return r.stats
}

func (r *ReadVcfData) offset() int64 {
	return r.base + int64(r.bufferPos)
}

// checkForAvailableData reports whether bytesNeeded bytes are buffered at bufferPos, compacting
// and refilling the buffer first if they are not.
func (r *ReadVcfData) checkForAvailableData(ctx context.Context, bytesNeeded int) (bool, error) {
	if r.dataLength-r.bufferPos >= bytesNeeded {
		return true, nil
	}
	if bytesNeeded > len(r.buf) {
		return false, &FramingError{
			Offset: r.offset(),
			Err:    fmt.Errorf("%w: need %d bytes, capacity is %d", ErrRecordTooLarge, bytesNeeded, len(r.buf)),
		}
	}
	if r.eof {
		return false, nil
	}

	r.base += int64(r.bufferPos)
	r.dataLength = copy(r.buf, r.buf[r.bufferPos:r.dataLength])
	r.bufferPos = 0

	for r.dataLength < len(r.buf) {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("refilling buffer: %w", err)
		}
		n, err := r.session.ReadChunk(r.buf[r.dataLength:])
		r.dataLength += n
		r.stats.BytesRead += int64(n)
		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			return false, err
		}
	}
	r.stats.Refills++
	r.logger.Debug(ctx, "refilled buffer", "offset", r.base, "buffered", r.dataLength, "eof", r.eof)
	return r.dataLength >= bytesNeeded, nil
}

// fields decodes values at the reader's cursor for a record.Schema.
type fields struct {
	ctx context.Context
	r   *ReadVcfData
}

func (f *fields) next(n int) ([]byte, error) {
	ok, err := f.r.checkForAvailableData(f.ctx, n)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errTruncated
	}
	b := f.r.buf[f.r.bufferPos : f.r.bufferPos+n]
	f.r.bufferPos += n
	return b, nil
}

func (f *fields) Uint64() (uint64, error) {
	b, err := f.next(8)
	if err != nil {
		return 0, err
	}
	return record.ByteOrder.Uint64(b), nil
}

func (f *fields) Uint32() (uint32, error) {
	b, err := f.next(4)
	if err != nil {
		return 0, err
	}
	return record.ByteOrder.Uint32(b), nil
}

// String is readString: a 4-byte length prefix, then the bytes it announces.
func (f *fields) String() (string, error) {
	prefixAt := f.r.offset()
	n, err := f.Uint32()
	if err != nil {
		return "", err
	}
	if int64(n) > int64(f.r.opts.maxFieldLength) {
		return "", &FramingError{
			Offset: prefixAt,
			Err:    fmt.Errorf("%w: %d bytes, maximum is %d", ErrImplausibleLength, n, f.r.opts.maxFieldLength),
		}
	}
	b, err := f.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetVcfData streams the whole object and returns the records inside region, in stream order.
// It fails atomically: on any error no records are returned. The stream is closed before it
// returns.
func (r *ReadVcfData) GetVcfData(ctx context.Context, region record.Region) ([]record.Record, error) {
	if r.done {
		return nil, ErrAlreadyConsumed
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			r.logger.Warn(ctx, "closing stream", "error", closeErr)
		}
	}()

	if _, ok := logging.Query(ctx); !ok {
		ctx = logging.WithQuery(ctx, logging.QueryInfo{
			Object: r.session.Locator().String(),
			Contig: region.Contig,
			Start:  region.Start,
			End:    region.End,
		})
	}

	results := make([]record.Record, 0)
	if region.Empty() || (region.Contig != "" && region.Contig != r.contig) {
		r.logger.Debug(ctx, "region cannot match object, skipping stream", "region", region.String(), "object_contig", r.contig)
		return results, nil
	}

	f := &fields{ctx: ctx, r: r}
	minSize := r.opts.schema.MinSize()
	for {
		ok, err := r.checkForAvailableData(ctx, minSize)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
		if !ok {
			r.stats.Discarded = r.dataLength - r.bufferPos
			if r.stats.Discarded > 0 {
				r.logger.Debug(ctx, "discarding trailing bytes", "bytes", r.stats.Discarded)
			}
			break
		}

		start := r.offset()
		rec, err := r.opts.schema.Decode(f)
		if errors.Is(err, errTruncated) {
			r.stats.Discarded = int(r.base + int64(r.dataLength) - start)
			r.logger.Warn(ctx, "stream ended inside a record", "offset", start, "bytes", r.stats.Discarded)
			break
		}
		if err != nil {
			var framingErr *FramingError
			var transportErr *storage.TransportError
			if !errors.As(err, &framingErr) && !errors.As(err, &transportErr) && ctx.Err() == nil {
				err = &FramingError{Offset: start, Err: err}
			}
			return nil, r.fail(ctx, err)
		}
		r.stats.Decoded++

		rec.Contig = r.contig
		if region.Contains(rec) {
			results = append(results, rec)
			r.stats.Matched++
		} else if r.opts.sortedPositions && region.Past(rec.Pos) {
			r.logger.Debug(ctx, "passed end of region in sorted object", "pos", rec.Pos)
			break
		}
	}

	r.logger.Info(
		ctx, "finished reading object",
		"matched", r.stats.Matched,
		"decoded", r.stats.Decoded,
		"bytes_read", r.stats.BytesRead,
		"refills", r.stats.Refills,
	)
	return results, nil
}

func (r *ReadVcfData) fail(ctx context.Context, err error) error {
	r.logger.Error(ctx, "reading object failed", "error", err, "decoded", r.stats.Decoded)
	return fmt.Errorf("reading %s: %w", r.session.Locator(), err)
}

// Query opens the object, reads it, and closes it.
func Query(
	ctx context.Context,
	logger logging.Logger,
	backend storage.Backend,
	loc storage.Locator,
	contig string,
	region record.Region,
	opts ...Option,
) ([]record.Record, Stats, error) {
	r, err := New(ctx, logger, backend, loc, contig, opts...)
	if err != nil {
		return nil, Stats{}, err
	}
	recs, err := r.GetVcfData(ctx, region)
	return recs, r.Stats(), err
}
