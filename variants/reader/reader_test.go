package reader_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chriskuehl/vcfrange/testfunc"
	"github.com/chriskuehl/vcfrange/variants/reader"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

var chr1 = storage.Locator{Bucket: "variants", Key: "chr1.bin"}

func newBackend(content []byte) *testfunc.MemoryStorageBackend {
	b := testfunc.NewMemoryStorageBackend()
	b.Put(chr1, content)
	return b
}

func query(t *testing.T, backend storage.Backend, region record.Region, opts ...reader.Option) ([]record.Record, reader.Stats, error) {
	t.Helper()
	ctx := context.Background()
	r, err := reader.New(ctx, testfunc.NewMemoryLogger(), backend, chr1, "1", opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recs, err := r.GetVcfData(ctx, region)
	return recs, r.Stats(), err
}

func TestGetVcfDataScenario(t *testing.T) {
	backend := newBackend(testfunc.EncodeRecords(
		record.Record{Pos: 100, Ref: "A", Alt: "G"},
		record.Record{Pos: 250, Ref: "C", Alt: "T"},
		record.Record{Pos: 400, Ref: "GA", Alt: "G"},
	))

	got, _, err := query(t, backend, record.Region{Contig: "1", Start: 200, End: 400})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []record.Record{
		{Contig: "1", Pos: 250, Ref: "C", Alt: "T"},
		{Contig: "1", Pos: 400, Ref: "GA", Alt: "G"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}
	if n := backend.OpenSessions(); n != 0 {
		t.Errorf("got %d open sessions, want 0", n)
	}
}

func manyRecords(n int) []record.Record {
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Record{
			Pos: uint64(i * 10),
			Ref: strings.Repeat("A", i%13),
			Alt: strings.Repeat("C", (i*7)%5+1),
		}
	}
	return recs
}

func TestGetVcfDataAcrossRefills(t *testing.T) {
	recs := manyRecords(500)
	region := record.Region{Contig: "1", Start: 1000, End: 3999}
	var want []record.Record
	for _, rec := range recs {
		rec.Contig = "1"
		if region.Contains(rec) {
			want = append(want, rec)
		}
	}

	tests := []struct {
		capacity int
		maxChunk int
	}{
		{capacity: 64, maxChunk: 0},
		{capacity: 64, maxChunk: 1},
		{capacity: 64, maxChunk: 7},
		{capacity: 100, maxChunk: 33},
		{capacity: reader.DefaultBufferCapacity, maxChunk: 0},
		{capacity: reader.DefaultBufferCapacity, maxChunk: 1000},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("capacity=%d,chunk=%d", tt.capacity, tt.maxChunk), func(t *testing.T) {
			backend := newBackend(testfunc.EncodeRecords(recs...))
			backend.MaxChunk = tt.maxChunk

			got, stats, err := query(t, backend, region, reader.WithBufferCapacity(tt.capacity))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("unexpected records (-want +got):\n%s", diff)
			}
			if stats.Decoded != len(recs) {
				t.Errorf("got %d decoded records, want %d", stats.Decoded, len(recs))
			}
			if stats.Matched != len(want) {
				t.Errorf("got %d matched records, want %d", stats.Matched, len(want))
			}
			if tt.capacity == 64 && stats.Refills < 10 {
				t.Errorf("got %d refills, expected many with a small buffer", stats.Refills)
			}
		})
	}
}

func TestGetVcfDataFieldLargerThanBuffer(t *testing.T) {
	content := testfunc.EncodeRecords(
		record.Record{Pos: 1, Ref: "A", Alt: "T"},
		record.Record{Pos: 2, Ref: strings.Repeat("G", 100), Alt: "T"},
	)

	tests := []struct {
		name      string
		opts      []reader.Option
		wantCause error
	}{
		{
			name:      "default maximum field length",
			opts:      []reader.Option{reader.WithBufferCapacity(32)},
			wantCause: reader.ErrImplausibleLength,
		},
		{
			name:      "maximum field length above capacity",
			opts:      []reader.Option{reader.WithBufferCapacity(32), reader.WithMaxFieldLength(1000)},
			wantCause: reader.ErrRecordTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(content)
			got, _, err := query(t, backend, record.Region{Contig: "1", Start: 0, End: 10}, tt.opts...)
			var framingErr *reader.FramingError
			if !errors.As(err, &framingErr) {
				t.Fatalf("got error %v, want *FramingError", err)
			}
			if !errors.Is(err, tt.wantCause) {
				t.Errorf("got error %v, want cause %v", err, tt.wantCause)
			}
			// Second record starts after the 8+4+1+4+1 bytes of the first; its ref prefix
			// follows its 8-byte position.
			if framingErr.Offset != 18+8 && tt.wantCause == reader.ErrImplausibleLength {
				t.Errorf("got offset %d, want %d", framingErr.Offset, 18+8)
			}
			if got != nil {
				t.Errorf("got records %v with an error, want none", got)
			}
			if n := backend.OpenSessions(); n != 0 {
				t.Errorf("got %d open sessions, want 0", n)
			}
		})
	}
}

func TestGetVcfDataImplausibleLengthPrefix(t *testing.T) {
	content := testfunc.EncodeRecords(record.Record{Pos: 1, Ref: "A", Alt: "T"})
	// Corrupt the ref length prefix.
	copy(content[8:12], []byte{0xff, 0xff, 0xff, 0x7f})

	_, _, err := query(t, newBackend(content), record.Region{Start: 0, End: 10})
	if !errors.Is(err, reader.ErrImplausibleLength) {
		t.Fatalf("got error %v, want ErrImplausibleLength", err)
	}
	var transportErr *storage.TransportError
	if errors.As(err, &transportErr) {
		t.Errorf("framing error must not look like a transport error: %v", err)
	}
}

func TestGetVcfDataIdempotent(t *testing.T) {
	backend := newBackend(testfunc.EncodeRecords(manyRecords(200)...))
	backend.MaxChunk = 5
	region := record.Region{Contig: "1", Start: 300, End: 1200}

	first, _, err := query(t, backend, region, reader.WithBufferCapacity(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := query(t, backend, region, reader.WithBufferCapacity(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between sessions (-first +second):\n%s", diff)
	}
	if n := backend.Opened(); n != 2 {
		t.Errorf("got %d sessions opened, want 2", n)
	}
}

func TestGetVcfDataBoundaries(t *testing.T) {
	content := testfunc.EncodeRecords(
		record.Record{Pos: 100, Ref: "A", Alt: "G"},
		record.Record{Pos: 250, Ref: "C", Alt: "T"},
		record.Record{Pos: 400, Ref: "G", Alt: "C"},
	)

	tests := []struct {
		name          string
		region        record.Region
		wantPositions []uint64
		wantNoStream  bool
	}{
		{
			name:          "start equals end equals position",
			region:        record.Region{Contig: "1", Start: 250, End: 250},
			wantPositions: []uint64{250},
		},
		{
			name:          "start after end",
			region:        record.Region{Contig: "1", Start: 400, End: 100},
			wantPositions: []uint64{},
			wantNoStream:  true,
		},
		{
			name:          "half-open excludes end",
			region:        record.Region{Contig: "1", Start: 100, End: 400, Bounds: record.HalfOpen},
			wantPositions: []uint64{100, 250},
		},
		{
			name:          "half-open point is empty",
			region:        record.Region{Contig: "1", Start: 250, End: 250, Bounds: record.HalfOpen},
			wantPositions: []uint64{},
			wantNoStream:  true,
		},
		{
			name:          "closed includes end",
			region:        record.Region{Contig: "1", Start: 100, End: 400},
			wantPositions: []uint64{100, 250, 400},
		},
		{
			name:          "other contig",
			region:        record.Region{Contig: "2", Start: 0, End: 1000},
			wantPositions: []uint64{},
			wantNoStream:  true,
		},
		{
			name:          "any contig",
			region:        record.Region{Start: 0, End: 1000},
			wantPositions: []uint64{100, 250, 400},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats, err := query(t, newBackend(content), tt.region)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			positions := make([]uint64, 0, len(got))
			for _, rec := range got {
				positions = append(positions, rec.Pos)
			}
			if diff := cmp.Diff(tt.wantPositions, positions); diff != "" {
				t.Errorf("unexpected positions (-want +got):\n%s", diff)
			}
			if tt.wantNoStream && stats.BytesRead != 0 {
				t.Errorf("read %d bytes for a region that cannot match", stats.BytesRead)
			}
		})
	}
}

func TestGetVcfDataStringSplitAcrossRefill(t *testing.T) {
	recs := []record.Record{
		// 8 + 4 + 10 + 4 + 1 = 27 bytes; a 20 byte buffer ends 8 bytes into ref.
		{Pos: 1, Ref: "ACGTACGTAC", Alt: "G"},
		{Pos: 2, Ref: "T", Alt: "TTAGGCATC"},
		{Pos: 3, Ref: "GATTACA", Alt: "A"},
	}
	backend := newBackend(testfunc.EncodeRecords(recs...))

	got, stats, err := query(t, backend, record.Region{Contig: "1", Start: 0, End: 10}, reader.WithBufferCapacity(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := make([]record.Record, len(recs))
	for i, rec := range recs {
		rec.Contig = "1"
		want[i] = rec
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}
	if stats.Refills < 3 {
		t.Errorf("got %d refills, want at least 3", stats.Refills)
	}
}

func TestGetVcfDataTrailingBytes(t *testing.T) {
	content := testfunc.EncodeRecords(
		record.Record{Pos: 100, Ref: "A", Alt: "G"},
		record.Record{Pos: 250, Ref: "C", Alt: "T"},
	)
	content = append(content, 1, 2, 3)

	for _, capacity := range []int{12, 20, reader.DefaultBufferCapacity} {
		t.Run(fmt.Sprint(capacity), func(t *testing.T) {
			logger := testfunc.NewMemoryLogger()
			ctx := context.Background()
			r, err := reader.New(ctx, logger, newBackend(content), chr1, "1", reader.WithBufferCapacity(capacity))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := r.GetVcfData(ctx, record.Region{Start: 0, End: 1000})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 2 {
				t.Errorf("got %d records, want 2", len(got))
			}
			if d := r.Stats().Discarded; d != 3 {
				t.Errorf("got %d discarded bytes, want 3", d)
			}
			if logger.HasLine("WARN", "") || logger.HasLine("ERROR", "") {
				t.Errorf("unexpected warnings: %v", logger.Lines())
			}
		})
	}
}

func TestGetVcfDataTruncatedRecord(t *testing.T) {
	full := testfunc.EncodeRecords(
		record.Record{Pos: 100, Ref: "A", Alt: "G"},
		record.Record{Pos: 250, Ref: "CCCCCCCC", Alt: "T"},
	)
	// Keep the whole header of the second record but cut its ref short.
	content := full[:len(full)-8]

	logger := testfunc.NewMemoryLogger()
	ctx := context.Background()
	r, err := reader.New(ctx, logger, newBackend(content), chr1, "1", reader.WithBufferCapacity(16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.GetVcfData(ctx, record.Region{Start: 0, End: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []record.Record{{Contig: "1", Pos: 100, Ref: "A", Alt: "G"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}
	if !logger.HasLine("WARN", "stream ended inside a record") {
		t.Errorf("expected a truncation warning, got %v", logger.Lines())
	}
	// Position, ref length prefix and the 5 ref bytes that made it.
	if d := r.Stats().Discarded; d != 8+4+5 {
		t.Errorf("got %d discarded bytes, want %d", d, 8+4+5)
	}
}

func TestGetVcfDataEmptyObject(t *testing.T) {
	got, stats, err := query(t, newBackend(nil), record.Region{Start: 0, End: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 || stats.Decoded != 0 {
		t.Errorf("got %v (%d decoded), want nothing", got, stats.Decoded)
	}
}

func TestGetVcfDataTransportFailure(t *testing.T) {
	boom := errors.New("connection reset by peer")
	backend := newBackend(testfunc.EncodeRecords(manyRecords(100)...))
	backend.FailAfter = 300
	backend.FailErr = boom

	got, _, err := query(t, backend, record.Region{Start: 0, End: 100000}, reader.WithBufferCapacity(64))
	var transportErr *storage.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("got error %v, want *TransportError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("got error %v, want it to wrap %v", err, boom)
	}
	var framingErr *reader.FramingError
	if errors.As(err, &framingErr) {
		t.Errorf("transport error must not look like a framing error: %v", err)
	}
	if got != nil {
		t.Errorf("got %d records with an error, want none", len(got))
	}
	if n := backend.OpenSessions(); n != 0 {
		t.Errorf("got %d open sessions, want 0", n)
	}
}

func TestGetVcfDataCancelled(t *testing.T) {
	backend := newBackend(testfunc.EncodeRecords(manyRecords(10)...))
	ctx, cancel := context.WithCancel(context.Background())
	r, err := reader.New(ctx, testfunc.NewMemoryLogger(), backend, chr1, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	got, err := r.GetVcfData(ctx, record.Region{Start: 0, End: 1000})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context.Canceled", err)
	}
	if got != nil {
		t.Errorf("got records %v after cancellation, want none", got)
	}
	if n := backend.OpenSessions(); n != 0 {
		t.Errorf("got %d open sessions, want 0", n)
	}
}

func TestGetVcfDataAlreadyConsumed(t *testing.T) {
	ctx := context.Background()
	r, err := reader.New(ctx, testfunc.NewMemoryLogger(), newBackend(testfunc.EncodeRecords(manyRecords(3)...)), chr1, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.GetVcfData(ctx, record.Region{Start: 0, End: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.GetVcfData(ctx, record.Region{Start: 0, End: 100}); !errors.Is(err, reader.ErrAlreadyConsumed) {
		t.Errorf("got error %v, want ErrAlreadyConsumed", err)
	}
}

func TestCloseWithoutQuery(t *testing.T) {
	backend := newBackend(testfunc.EncodeRecords(manyRecords(3)...))
	r, err := reader.New(context.Background(), testfunc.NewMemoryLogger(), backend, chr1, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := backend.OpenSessions(); n != 1 {
		t.Fatalf("got %d open sessions, want 1", n)
	}
	for i := 0; i < 2; i++ {
		if err := r.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := backend.OpenSessions(); n != 0 {
		t.Errorf("got %d open sessions, want 0", n)
	}
}

func TestNewMissingObject(t *testing.T) {
	_, err := reader.New(context.Background(), testfunc.NewMemoryLogger(), testfunc.NewMemoryStorageBackend(), chr1, "1")
	var transportErr *storage.TransportError
	if !errors.As(err, &transportErr) || transportErr.Op != "open" {
		t.Fatalf("got error %v, want open *TransportError", err)
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("got error %v, want ErrObjectNotFound", err)
	}
}

func TestNewBufferSmallerThanHeader(t *testing.T) {
	backend := newBackend(nil)
	_, err := reader.New(context.Background(), testfunc.NewMemoryLogger(), backend, chr1, "1", reader.WithBufferCapacity(11))
	if err == nil {
		t.Fatalf("expected an error for a buffer smaller than a record header")
	}
	if n := backend.Opened(); n != 0 {
		t.Errorf("got %d sessions opened, want 0", n)
	}
}

func TestGetVcfDataSortedPositions(t *testing.T) {
	backend := newBackend(testfunc.EncodeRecords(manyRecords(100)...))
	region := record.Region{Start: 100, End: 200}

	got, stats, err := query(t, backend, region, reader.WithSortedPositions(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 11 {
		t.Errorf("got %d records, want 11", len(got))
	}
	// Records 0..20 match or precede the region; record 21 (pos 210) ends the scan.
	if stats.Decoded != 22 {
		t.Errorf("got %d decoded records, want 22", stats.Decoded)
	}
}

// flaggedSchema has a uint32 flags word between the position and the strings.
type flaggedSchema struct{}

func (flaggedSchema) MinSize() int { return 8 + 4 + 4 }

func (flaggedSchema) Decode(f record.Fields) (record.Record, error) {
	pos, err := f.Uint64()
	if err != nil {
		return record.Record{}, err
	}
	flags, err := f.Uint32()
	if err != nil {
		return record.Record{}, err
	}
	if flags > 1 {
		return record.Record{}, fmt.Errorf("unknown flags %#x", flags)
	}
	ref, err := f.String()
	if err != nil {
		return record.Record{}, err
	}
	alt, err := f.String()
	if err != nil {
		return record.Record{}, err
	}
	if flags == 1 {
		ref, alt = alt, ref
	}
	return record.Record{Pos: pos, Ref: ref, Alt: alt}, nil
}

func encodeFlagged(pos uint64, flags uint32, ref, alt string) []byte {
	b := record.ByteOrder.AppendUint64(nil, pos)
	b = record.ByteOrder.AppendUint32(b, flags)
	b = record.ByteOrder.AppendUint32(b, uint32(len(ref)))
	b = append(b, ref...)
	b = record.ByteOrder.AppendUint32(b, uint32(len(alt)))
	return append(b, alt...)
}

func TestGetVcfDataCustomSchema(t *testing.T) {
	content := append(encodeFlagged(5, 0, "A", "G"), encodeFlagged(6, 1, "T", "C")...)
	got, _, err := query(t, newBackend(content), record.Region{Start: 0, End: 10}, reader.WithSchema(flaggedSchema{}), reader.WithBufferCapacity(16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []record.Record{
		{Contig: "1", Pos: 5, Ref: "A", Alt: "G"},
		{Contig: "1", Pos: 6, Ref: "C", Alt: "T"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestGetVcfDataSchemaError(t *testing.T) {
	content := append(encodeFlagged(5, 0, "A", "G"), encodeFlagged(6, 7, "T", "C")...)
	_, _, err := query(t, newBackend(content), record.Region{Start: 0, End: 10}, reader.WithSchema(flaggedSchema{}))
	var framingErr *reader.FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("got error %v, want *FramingError", err)
	}
	if framingErr.Offset != 8+4+4+1+4+1 {
		t.Errorf("got offset %d, want start of second record", framingErr.Offset)
	}
}
